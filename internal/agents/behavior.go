// Agent state machine: one Tick per scheduling step.
// Routines never block: a routine that is still waiting returns and is
// stepped again on the next tick.
package agents

import (
	"fmt"
	"log/slog"

	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

type routineKind uint8

const (
	routineNone routineKind = iota
	routineWander
	routineRoomWander
	routineRoomUse
	routineQueue
)

type queuePhase uint8

const (
	phaseJoin queuePhase = iota
	phaseBackoff
	phaseQueued
	phaseServed
)

// routine is the in-flight sub-behavior of the current state.
type routine struct {
	kind    routineKind
	budget  int // Total ticks
	elapsed int
	wait    int // Ticks left in the current sub-wait
	phase   queuePhase

	// Wander detour follow-up; when unset the policy decides.
	then    State
	hasThen bool
}

// Tick advances the agent by one scheduling step. Drivers in priority
// order: navigator surface loss, hard despawn, hourly re-evaluation,
// then the running routine and arrival checks.
func (a *Agent) Tick() {
	if !a.Active {
		return
	}

	if a.Nav == nil || !a.Nav.OnNavigableSurface() {
		slog.Warn("agent left navigable surface", "agent", a.Name, "state", a.State)
		a.Recycle(ReasonOffSurface)
		return
	}

	if clock := a.env.Clock; clock != nil {
		hour, minute := clock.Hour(), clock.Minute()
		policy := a.env.Policy

		if policy.HardDespawn(hour, minute) && a.State != StateUsingRoom {
			if a.State != StateReturningToSpawn {
				slog.Debug("close hour, forcing despawn", "agent", a.Name, "state", a.State)
				a.forceDespawn()
			}
			a.LastBehaviorHour = hour
		} else if minute == 0 && policy.ReevaluationHour(hour) &&
			!a.State.Busy() && hour != a.LastBehaviorHour {
			a.decide()
		}
	}

	if !a.Active {
		return
	}
	a.step()
}

func (a *Agent) step() {
	switch a.run.kind {
	case routineWander:
		a.stepWander()
	case routineRoomWander:
		a.stepRoomWander()
	case routineRoomUse:
		a.stepRoomUse()
	case routineQueue:
		a.stepQueue()
	}

	switch a.State {
	case StateMovingToRoom:
		room, ok := a.room()
		if !ok {
			a.reportVacancy()
			return
		}
		if a.arrived() && room.Bounds.Contains(a.Nav.Position()) {
			a.beginRoomUse(room)
		}
	case StateReturningToSpawn:
		if a.arrived() {
			slog.Debug("agent reached spawn", "agent", a.Name)
			a.Recycle(ReasonReturned)
		}
	}
}

// decide runs the time-of-day policy and enters its outcome.
func (a *Agent) decide() {
	clock := a.env.Clock
	if clock == nil {
		slog.Warn("no clock, using fallback", "agent", a.Name)
		a.enter(Fallback(a.counterReachable(), a.env.RNG))
		return
	}

	hour := clock.Hour()
	next := a.env.Policy.Decide(Conditions{
		Hour:             hour,
		Minute:           clock.Minute(),
		HoldsRoom:        a.HoldsRoom(),
		UsingRoom:        a.State == StateUsingRoom,
		CounterReachable: a.counterReachable(),
	}, a.env.RNG)
	a.LastBehaviorHour = hour
	a.enter(next)
}

func (a *Agent) counterReachable() bool {
	return a.env.Counter != nil
}

// enter cancels the current routine and starts the one for next.
func (a *Agent) enter(next State) {
	a.cancelRoutine()
	if a.State == StateUsingRoom {
		a.BeingServed = false
	}
	a.setState(next)

	switch next {
	case StateWandering:
		a.run = routine{kind: routineWander, budget: a.env.draw(a.env.Timing.Wander)}
	case StateMovingToQueue, StateReportingRoomQueue:
		a.run = routine{kind: routineQueue, phase: phaseJoin}
	case StateMovingToRoom:
		room, ok := a.room()
		if !ok {
			a.reportVacancy()
			return
		}
		a.Nav.SetDestination(room.Anchor())
	case StateRoomWandering:
		if _, ok := a.room(); !ok {
			a.reportVacancy()
			return
		}
		a.run = routine{kind: routineRoomWander, budget: a.env.draw(a.env.Timing.RoomWander)}
	case StateReturningToSpawn:
		a.Nav.SetDestination(a.env.Spawn)
	}
}

// setState relabels the agent without touching the running routine.
func (a *Agent) setState(next State) {
	from := a.State
	a.State = next
	a.Intent = a.describe(next)
	slog.Debug("state change", "agent", a.Name, "from", from, "to", next)
	if h := a.env.Hooks.OnTransition; h != nil {
		h(a, from, next)
	}
}

// cancelRoutine stops the in-flight routine. A cancelled queue routine
// gives up the agent's place in line.
func (a *Agent) cancelRoutine() {
	if a.run.kind == routineQueue {
		a.leaveQueue()
	}
	a.run = routine{}
}

func (a *Agent) leaveQueue() {
	wasQueued := a.InQueue || a.AwaitingService
	a.InQueue = false
	a.AwaitingService = false
	a.BeingServed = false
	if wasQueued && a.env.Counter != nil {
		a.env.Counter.LeaveQueue(a)
	}
}

// forceDespawn cancels everything in flight and heads for the exit.
func (a *Agent) forceDespawn() {
	a.cancelRoutine()
	a.releaseRoom()
	a.enter(StateReturningToSpawn)
}

func (a *Agent) arrived() bool {
	return !a.Nav.PathPending() && a.Nav.RemainingDistance() < a.env.Timing.ArrivalDistance
}

// room resolves the assigned room; false when unassigned or stale.
func (a *Agent) room() (rooms.Room, bool) {
	if !a.HoldsRoom() || a.env.Rooms == nil {
		return rooms.Room{}, false
	}
	room, ok := a.env.Rooms.Get(a.RoomID)
	if !ok || room.Holder != a.Name {
		slog.Warn("invalid room reference", "agent", a.Name, "room", a.RoomID)
		return rooms.Room{}, false
	}
	return room, true
}

func (a *Agent) claimRoom() bool {
	if a.env.Rooms == nil {
		return false
	}
	room, ok := a.env.Rooms.Claim(a.Name, func(r rooms.Room) { a.RoomID = r.ID })
	if h := a.env.Hooks.OnClaim; h != nil {
		h(a, room, ok)
	}
	return ok
}

func (a *Agent) releaseRoom() {
	if !a.HoldsRoom() {
		return
	}
	if a.env.Rooms == nil {
		a.RoomID = rooms.None
		return
	}
	a.env.Rooms.Release(a.RoomID, a.Name, func() { a.RoomID = rooms.None })
}

// ── Wandering ──────────────────────────────────────────────────────

// advanceWait runs one tick of a sub-wait loop. begin is set when a new
// sub-step starts (its wait already charged to the budget); done is set
// once the budget is spent.
func (a *Agent) advanceWait(step Span) (begin, done bool) {
	r := &a.run
	if r.wait > 0 {
		r.wait--
		if r.wait > 0 {
			return false, false
		}
	}
	if r.elapsed >= r.budget {
		return false, true
	}
	w := max(a.env.draw(step), 1)
	r.wait = w
	r.elapsed += w
	return true, false
}

func (a *Agent) stepWander() {
	begin, done := a.advanceWait(a.env.Timing.WanderStep)
	if done {
		if a.run.hasThen {
			a.enter(a.run.then)
			return
		}
		a.decide()
		return
	}
	if !begin {
		return
	}
	if p, ok := a.Nav.SampleWalkablePoint(a.Nav.Position(), a.env.Timing.WanderRadius); ok {
		a.Nav.SetDestination(p)
	}
}

func (a *Agent) stepRoomWander() {
	room, ok := a.room()
	if !ok {
		a.reportVacancy()
		return
	}

	begin, done := a.advanceWait(a.env.Timing.RoomWanderStep)
	if done {
		a.decide()
		return
	}
	if !begin {
		return
	}
	if p, ok := a.pointInRoom(room); ok {
		a.Nav.SetDestination(p)
	}
}

// pointInRoom samples a walkable point inside the room, giving up after
// the retry budget.
func (a *Agent) pointInRoom(room rooms.Room) (geom.Vec3, bool) {
	center := room.Anchor()
	radius := room.Radius() * 0.8
	for i := 0; i < a.env.Timing.RoomRetries; i++ {
		p, ok := a.Nav.SampleWalkablePoint(center, radius)
		if ok && geom.FlatDist(p, center) <= radius && room.Bounds.Contains(p) {
			return p, true
		}
	}
	return geom.Vec3{}, false
}

// ── Room use ───────────────────────────────────────────────────────

func (a *Agent) beginRoomUse(room rooms.Room) {
	if b := a.env.Billing; b != nil {
		b.ReportUsageStart(a.Name, room)
	}
	a.enter(StateUsingRoom)
	a.run = routine{kind: routineRoomUse, budget: a.env.draw(a.env.Timing.RoomUse)}
	slog.Debug("room use started", "agent", a.Name, "room", room.ID, "ticks", a.run.budget)
}

func (a *Agent) stepRoomUse() {
	if _, done := a.advanceWait(a.env.Timing.RoomUseStep); done {
		slog.Debug("room use finished", "agent", a.Name, "room", a.RoomID)
		a.decide()
	}
}

// reportVacancy releases the held room, settles payment, and either
// detours before re-queuing (checkout band) or lets the policy decide.
func (a *Agent) reportVacancy() {
	a.enter(StateReportingRoom)

	held := a.RoomID
	if held == rooms.None {
		slog.Warn("reporting vacancy without a room", "agent", a.Name)
	}
	if a.env.Rooms != nil {
		a.env.Rooms.Release(held, a.Name, func() { a.RoomID = rooms.None })
	} else {
		a.RoomID = rooms.None
	}

	if b := a.env.Billing; b != nil {
		amount := b.ProcessPayment(a.Name)
		slog.Debug("room paid", "agent", a.Name, "room", held, "amount", amount)
		if h := a.env.Hooks.OnPayment; h != nil {
			h(a, amount)
		}
	}

	if clock := a.env.Clock; clock != nil && a.env.Policy.InReportBand(clock.Hour()) {
		if !a.counterReachable() {
			a.enter(StateReturningToSpawn)
			return
		}
		a.enter(StateWandering)
		a.run.budget = a.env.draw(a.env.Timing.ReportDetour)
		a.run.then = StateMovingToQueue
		a.run.hasThen = true
		return
	}
	a.decide()
}

// ── Lifecycle ──────────────────────────────────────────────────────

// activate resets the agent for a new visit.
func (a *Agent) activate() error {
	if a.env == nil || a.env.Clock == nil {
		return ErrNoClock
	}
	if a.Nav == nil {
		return ErrNoNavigator
	}

	a.run = routine{}
	a.RoomID = rooms.None
	a.InQueue = false
	a.AwaitingService = false
	a.BeingServed = false
	a.Active = true
	a.Activations++
	a.Nav.Warp(a.env.Spawn)

	// A new visit has not been evaluated yet; the first top-of-hour tick
	// runs the policy.
	a.LastBehaviorHour = -1
	a.State = StateMovingToQueue
	a.Intent = a.describe(a.State)
	a.run = routine{kind: routineQueue, phase: phaseJoin}
	return nil
}

// Cleanup releases the held room, drops any unpaid charge, clears queue
// flags and leaves the counter queue. Idempotent.
func (a *Agent) Cleanup() {
	a.releaseRoom()
	if b := a.env.Billing; b != nil {
		b.DropUsage(a.Name)
	}
	a.InQueue = false
	a.AwaitingService = false
	a.BeingServed = false
	if a.env.Counter != nil {
		a.env.Counter.LeaveQueue(a)
	}
}

// Recycle cancels whatever is in flight, cleans up and returns the agent
// to its pool.
func (a *Agent) Recycle(reason string) {
	a.run = routine{}
	a.Cleanup()
	if h := a.env.Hooks.OnRecycle; h != nil {
		h(a, reason)
	}
	slog.Debug("agent recycled", "agent", a.Name, "reason", reason)
	if a.env.Pool != nil {
		a.env.Pool.ReturnToPool(a)
		return
	}
	a.Active = false
}

// ── Counter hand-off ───────────────────────────────────────────────

var _ counter.Customer = (*Agent)(nil)

// CustomerID identifies the agent at the counter.
func (a *Agent) CustomerID() string { return a.Name }

// SetQueueDestination sends the agent to its queue slot.
func (a *Agent) SetQueueDestination(p geom.Vec3) {
	if a.Nav != nil {
		a.Nav.SetDestination(p)
	}
}

// OnServiceComplete is called by the counter when the session ends.
func (a *Agent) OnServiceComplete() {
	a.AwaitingService = false
	a.InQueue = false
	if a.env.Counter != nil {
		a.env.Counter.LeaveQueue(a)
	}
}

func (a *Agent) describe(s State) string {
	n := 0
	if a.HoldsRoom() && a.env.Rooms != nil {
		n = a.env.Rooms.Number(a.RoomID)
	}
	switch s {
	case StateWandering:
		return "wandering"
	case StateMovingToQueue:
		return "heading to the queue"
	case StateWaitingInQueue:
		return "waiting in the queue"
	case StateMovingToRoom:
		return fmt.Sprintf("heading to room %d", n)
	case StateUsingRoom:
		return "using the room"
	case StateReportingRoom:
		return "reporting checkout"
	case StateReturningToSpawn:
		return "leaving"
	case StateRoomWandering:
		return fmt.Sprintf("wandering inside room %d", n)
	case StateReportingRoomQueue:
		return "queuing to report checkout"
	}
	return "unknown"
}
