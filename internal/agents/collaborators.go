package agents

import (
	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

// Clock is the process-wide time of day.
type Clock interface {
	Hour() int   // 0..23
	Minute() int // 0..59
}

// Navigator moves one agent around the facility.
type Navigator interface {
	SetDestination(p geom.Vec3)
	PathPending() bool
	RemainingDistance() float64
	OnNavigableSurface() bool
	SampleWalkablePoint(center geom.Vec3, radius float64) (geom.Vec3, bool)
	Position() geom.Vec3
	Warp(p geom.Vec3)
}

// ServiceCounter admits agents into its queue and serves them.
type ServiceCounter interface {
	TryJoinQueue(c counter.Customer) bool
	CanReceiveService(c counter.Customer) bool
	StartService(c counter.Customer)
	LeaveQueue(c counter.Customer)
}

// Billing tracks room usage and settles payments.
type Billing interface {
	ReportUsageStart(agentID string, room rooms.Room)
	ProcessPayment(agentID string) int64
	DropUsage(agentID string) bool
}

// Recycler takes finished agents back into the pool.
type Recycler interface {
	ReturnToPool(a *Agent)
}

// Hooks observe the state machine. Nil hooks are skipped.
type Hooks struct {
	OnTransition func(a *Agent, from, to State)
	OnRecycle    func(a *Agent, reason string)
	OnClaim      func(a *Agent, room rooms.Room, ok bool)
	OnPayment    func(a *Agent, amount int64)
}

// Env is the set of collaborators shared by every agent. Counter and
// Billing may be nil; the agent then degrades to the fallback policy.
type Env struct {
	Clock   Clock
	Rooms   *rooms.Registry
	Counter ServiceCounter
	Billing Billing
	Pool    Recycler
	Policy  Policy
	Timing  Timing
	Spawn   geom.Vec3
	RNG     entropy.Source
	Hooks   Hooks
}

// Span is an inclusive range of ticks.
type Span struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Timing holds the behavior durations, all in scheduling ticks.
type Timing struct {
	ArrivalDistance float64 `yaml:"arrival_distance"`
	WanderRadius    float64 `yaml:"wander_radius"`
	RoomRetries     int     `yaml:"room_retries"`
	Wander          Span    `yaml:"wander"`
	WanderStep      Span    `yaml:"wander_step"`
	RoomWander      Span    `yaml:"room_wander"`
	RoomWanderStep  Span    `yaml:"room_wander_step"`
	RoomUse         Span    `yaml:"room_use"`
	RoomUseStep     Span    `yaml:"room_use_step"`
	QueueBackoff    Span    `yaml:"queue_backoff"`
	ReportDetour    Span    `yaml:"report_detour"`
}

// DefaultTiming returns the stock durations.
func DefaultTiming() Timing {
	return Timing{
		ArrivalDistance: 0.5,
		WanderRadius:    10,
		RoomRetries:     3,
		Wander:          Span{15, 30},
		WanderStep:      Span{3, 7},
		RoomWander:      Span{15, 30},
		RoomWanderStep:  Span{2, 5},
		RoomUse:         Span{25, 35},
		RoomUseStep:     Span{2, 5},
		QueueBackoff:    Span{1, 3},
		ReportDetour:    Span{5, 10},
	}
}

func (e *Env) draw(s Span) int {
	return entropy.Range(e.RNG, s.Min, s.Max)
}
