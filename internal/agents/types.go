// Package agents provides the guest agent model, its time-of-day policy,
// the per-agent state machine and the pooled spawn scheduler.
package agents

import (
	"errors"
	"fmt"

	"github.com/talgya/motel-sim/internal/rooms"
)

// AgentID is a unique identifier for a pooled agent.
type AgentID uint64

// State is the agent's current lifecycle state.
type State uint8

const (
	StateWandering          State = iota // Outdoor wander
	StateMovingToQueue                   // Heading to the counter queue
	StateWaitingInQueue                  // Queued for service
	StateMovingToRoom                    // Walking to the assigned room
	StateUsingRoom                       // Inside the room, session running
	StateReportingRoom                   // Reporting the vacancy at the counter
	StateReturningToSpawn                // Leaving; recycled on arrival
	StateRoomWandering                   // Wandering inside the assigned room
	StateReportingRoomQueue              // Queued to report a vacancy
)

var stateNames = [...]string{
	"Wandering",
	"MovingToQueue",
	"WaitingInQueue",
	"MovingToRoom",
	"UsingRoom",
	"ReportingRoom",
	"ReturningToSpawn",
	"RoomWandering",
	"ReportingRoomQueue",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Busy reports whether the state is uninterruptible by the hourly
// re-evaluation. ReturningToSpawn is terminal for the activation and is
// never re-evaluated either.
func (s State) Busy() bool {
	switch s {
	case StateUsingRoom, StateWaitingInQueue, StateMovingToRoom, StateReportingRoom, StateReturningToSpawn:
		return true
	}
	return false
}

// Recycle reasons.
const (
	ReasonReturned   = "returned"
	ReasonOffSurface = "off_surface"
	ReasonRecalled   = "recalled"
)

var (
	ErrNoClock       = errors.New("agent has no clock")
	ErrNoNavigator   = errors.New("agent has no navigator")
	ErrPoolExhausted = errors.New("agent pool exhausted")
)

// Agent is one simulated guest. All fields are owned by the scheduling
// loop; readers outside it take a View under the simulation lock.
type Agent struct {
	ID   AgentID
	Name string

	State  State
	RoomID rooms.RoomID // rooms.None when unassigned

	// Counter hand-off.
	InQueue         bool
	AwaitingService bool
	BeingServed     bool

	LastBehaviorHour int
	Intent           string
	Active           bool
	Activations      int

	Nav Navigator

	env *Env
	run routine
}

// NewAgent creates an inactive pooled agent.
func NewAgent(id AgentID, nav Navigator, env *Env) *Agent {
	return &Agent{
		ID:               id,
		Name:             fmt.Sprintf("AI_%d", id),
		State:            StateMovingToQueue,
		LastBehaviorHour: -1,
		Nav:              nav,
		env:              env,
	}
}

// HoldsRoom reports whether the agent has a room assigned.
func (a *Agent) HoldsRoom() bool {
	return a.RoomID != rooms.None
}

// View is a read-only copy of an agent for display.
type View struct {
	ID              AgentID      `json:"id"`
	Name            string       `json:"name"`
	State           string       `json:"state"`
	Intent          string       `json:"intent"`
	RoomID          rooms.RoomID `json:"room_id,omitempty"`
	InQueue         bool         `json:"in_queue"`
	AwaitingService bool         `json:"awaiting_service"`
	BeingServed     bool         `json:"being_served"`
	Active          bool         `json:"active"`
	Activations     int          `json:"activations"`
	X               float64      `json:"x"`
	Z               float64      `json:"z"`
}

// View snapshots the agent.
func (a *Agent) View() View {
	v := View{
		ID:              a.ID,
		Name:            a.Name,
		State:           a.State.String(),
		Intent:          a.Intent,
		RoomID:          a.RoomID,
		InQueue:         a.InQueue,
		AwaitingService: a.AwaitingService,
		BeingServed:     a.BeingServed,
		Active:          a.Active,
		Activations:     a.Activations,
	}
	if a.Nav != nil {
		p := a.Nav.Position()
		v.X, v.Z = p.X, p.Z
	}
	return v
}
