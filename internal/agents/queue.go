package agents

import "log/slog"

// stepQueue drives the counter hand-off: join, optional backoff, wait for
// the head slot, then wait for the session to end.
func (a *Agent) stepQueue() {
	r := &a.run
	switch r.phase {
	case phaseJoin:
		a.joinQueue()

	case phaseBackoff:
		r.wait--
		if r.wait <= 0 {
			a.joinQueue()
		}

	case phaseQueued:
		c := a.env.Counter
		if c == nil {
			a.leaveQueue()
			a.enter(Fallback(false, a.env.RNG))
			return
		}
		if a.arrived() && c.CanReceiveService(a) {
			c.StartService(a)
			a.AwaitingService = true
			a.BeingServed = true
			r.phase = phaseServed
		}

	case phaseServed:
		if a.AwaitingService {
			return
		}
		a.BeingServed = false
		a.completeService()
	}
}

func (a *Agent) joinQueue() {
	c := a.env.Counter
	if c == nil {
		slog.Debug("counter unreachable", "agent", a.Name)
		a.enter(Fallback(false, a.env.RNG))
		return
	}

	if !c.TryJoinQueue(a) {
		if !a.HoldsRoom() {
			a.enter(Fallback(false, a.env.RNG))
			return
		}
		// Room holders keep trying so a busy counter never strands them.
		a.run.phase = phaseBackoff
		a.run.wait = a.env.draw(a.env.Timing.QueueBackoff)
		slog.Debug("queue full, backing off", "agent", a.Name, "ticks", a.run.wait)
		return
	}

	a.InQueue = true
	a.run.phase = phaseQueued
	if a.State != StateReportingRoomQueue {
		a.setState(StateWaitingInQueue)
	}
}

// completeService picks what follows a finished counter session.
func (a *Agent) completeService() {
	switch {
	case a.State == StateReportingRoomQueue:
		a.reportVacancy()

	case a.HoldsRoom():
		a.releaseRoom()
		a.enter(StateReturningToSpawn)

	case a.claimRoom():
		a.enter(StateMovingToRoom)

	default:
		slog.Debug("no room available after service", "agent", a.Name)
		a.enter(Fallback(false, a.env.RNG))
	}
}
