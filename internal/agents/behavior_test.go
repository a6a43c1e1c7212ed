package agents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

func TestActivationStartsAtQueue(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	a, nav := h.spawn(t)

	require.True(t, a.Active)
	require.Equal(t, StateMovingToQueue, a.State)
	require.Equal(t, rooms.None, a.RoomID)
	require.Equal(t, -1, a.LastBehaviorHour)
	require.Equal(t, h.env.Spawn, nav.Position())
	require.Equal(t, 1, a.Activations)
}

func TestQueueServiceThenRoomUse(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	a, _ := h.spawn(t)

	a.Tick()
	require.Equal(t, StateWaitingInQueue, a.State)
	require.True(t, a.InQueue)
	require.Equal(t, 1, h.desk.Len())

	require.True(t, h.tickUntil(a, 20, func() bool { return a.State == StateUsingRoom }))
	room, ok := h.reg.Get(a.RoomID)
	require.True(t, ok)
	require.True(t, room.Occupied)
	require.Equal(t, a.Name, room.Holder)
	require.EqualValues(t, 100, h.billing.open[a.Name])
	require.Zero(t, h.desk.Len())
	require.EqualValues(t, 1, h.desk.Snapshot().Served)
	require.False(t, a.InQueue)
	require.False(t, a.AwaitingService)

	require.True(t, h.tickUntil(a, 60, func() bool { return a.State != StateUsingRoom }))
	require.Contains(t, []State{StateWandering, StateRoomWandering}, a.State)
	require.True(t, a.HoldsRoom())
}

func TestReportBandCheckoutPaysAndRequeues(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	a, _ := h.spawn(t)
	require.True(t, h.tickUntil(a, 20, func() bool { return a.State == StateUsingRoom }))

	h.clock.set(9, 30)
	require.True(t, h.tickUntil(a, 60, func() bool { return a.State == StateReportingRoomQueue }))
	require.True(t, h.tickUntil(a, 20, func() bool { return a.State == StateWandering }))

	require.False(t, a.HoldsRoom())
	_, occupied := h.reg.Counts()
	require.Zero(t, occupied)
	require.Equal(t, []int64{100}, h.billing.paid)

	require.True(t, h.tickUntil(a, 30, func() bool { return a.State == StateWaitingInQueue }))
}

func TestHardDespawnPrecedence(t *testing.T) {
	setups := map[string]func(h *harness, a *Agent){
		"wandering": func(h *harness, a *Agent) {
			a.enter(StateWandering)
		},
		"waiting in queue": func(h *harness, a *Agent) {
			a.Tick()
			require.Equal(t, StateWaitingInQueue, a.State)
		},
		"room wandering": func(h *harness, a *Agent) {
			require.True(t, a.claimRoom())
			a.enter(StateRoomWandering)
		},
		"queued to report": func(h *harness, a *Agent) {
			require.True(t, a.claimRoom())
			a.enter(StateReportingRoomQueue)
			a.Tick()
			require.True(t, a.InQueue)
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 2, testSpawnConfig())
			h.clock.set(16, 59)
			a, nav := h.spawn(t)
			setup(h, a)

			nav.hold = true
			nav.pos = geom.Vec3{X: 50}
			h.clock.set(17, 0)
			a.Tick()

			require.Equal(t, StateReturningToSpawn, a.State)
			require.True(t, a.Active)
			require.False(t, a.HoldsRoom())
			require.False(t, a.InQueue)
			require.Zero(t, h.desk.Len())
			_, occupied := h.reg.Counts()
			require.Zero(t, occupied)

			a.Tick()
			require.Equal(t, StateReturningToSpawn, a.State)

			nav.hold = false
			nav.pos = h.env.Spawn
			a.Tick()
			require.False(t, a.Active)
			require.Equal(t, 4, h.sp.PooledCount())
		})
	}
}

func TestHardDespawnSparesRoomUse(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	h.clock.set(16, 30)
	a, _ := h.spawn(t)
	require.True(t, h.tickUntil(a, 20, func() bool { return a.State == StateUsingRoom }))

	h.clock.set(17, 0)
	a.Tick()
	require.Equal(t, StateUsingRoom, a.State)
	require.True(t, a.HoldsRoom())
}

func TestHourlyReevaluationRunsOncePerHour(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	h.clock.set(11, 30)
	a, nav := h.spawn(t)
	nav.hold = true
	a.enter(StateWandering)

	h.env.RNG = entropy.NewSequence(0.5)
	h.transitions = nil
	h.clock.set(12, 0)
	a.Tick()
	a.Tick()
	a.Tick()

	require.Equal(t, []string{a.Name + ":Wandering->Wandering"}, h.transitions)
	require.Equal(t, 12, a.LastBehaviorHour)
}

func TestBusyStatesSkipReevaluation(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	h.clock.set(11, 30)
	a, _ := h.spawn(t)
	a.Tick()
	require.Equal(t, StateWaitingInQueue, a.State)

	h.clock.set(12, 0)
	a.Tick()
	require.NotEqual(t, StateWandering, a.State)
	require.True(t, a.InQueue)
	require.Equal(t, -1, a.LastBehaviorHour)
}

func TestForcedRecycleCleansUp(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	a, nav := h.spawn(t)
	require.True(t, a.claimRoom())
	a.enter(StateReportingRoomQueue)
	a.Tick()
	a.Tick()
	require.True(t, a.AwaitingService)
	require.Equal(t, a.Name, h.desk.Snapshot().Serving)

	nav.off = true
	a.Tick()

	require.False(t, a.Active)
	require.False(t, a.HoldsRoom())
	require.False(t, a.InQueue)
	require.False(t, a.AwaitingService)
	_, occupied := h.reg.Counts()
	require.Zero(t, occupied)
	require.Zero(t, h.desk.Len())
	require.Empty(t, h.desk.Snapshot().Serving)
	require.Equal(t, 4, h.sp.PooledCount())

	a.Cleanup()
	a.Cleanup()
	require.Zero(t, h.desk.Len())
}

func TestStaleRoomReferenceReportsVacancy(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	a, _ := h.spawn(t)

	a.RoomID = "Room_999_0"
	a.enter(StateMovingToRoom)

	require.False(t, a.HoldsRoom())
	require.NotEqual(t, StateMovingToRoom, a.State)
	require.NotEqual(t, StateReportingRoom, a.State)
	require.Equal(t, []int64{0}, h.billing.paid)
}

func TestNoRoomAfterServiceFallsBack(t *testing.T) {
	h := newHarness(t, 0, testSpawnConfig())
	a, _ := h.spawn(t)

	a.Tick()
	require.True(t, h.tickUntil(a, 20, func() bool {
		return a.State == StateWandering || a.State == StateReturningToSpawn || !a.Active
	}))
	require.False(t, a.HoldsRoom())
	require.Zero(t, h.desk.Len())
}

func TestMissingCounterUsesFallback(t *testing.T) {
	h := newHarness(t, 2, testSpawnConfig())
	h.env.Counter = nil
	a, nav := h.spawn(t)
	nav.hold = true
	nav.pos = geom.Vec3{X: 50}

	a.Tick()
	require.Contains(t, []State{StateWandering, StateReturningToSpawn}, a.State)
}

func TestIntentNamesRoomNumber(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	a, nav := h.spawn(t)
	nav.hold = true
	require.True(t, a.claimRoom())
	a.enter(StateMovingToRoom)
	require.Equal(t, "heading to room 1", a.Intent)
	require.Equal(t, "heading to room 1", a.View().Intent)
}

func TestTriggerHourSpawnRunsHourlyPolicy(t *testing.T) {
	const n = 1000
	cfg := testSpawnConfig()
	cfg.PoolSize = n
	cfg.MinSpawn, cfg.MaxSpawn = n, n
	h := newHarness(t, 0, cfg)

	first := map[string]State{}
	h.env.Hooks.OnTransition = func(a *Agent, from, to State) {
		if _, seen := first[a.Name]; !seen {
			first[a.Name] = to
		}
	}

	h.clock.set(11, 0)
	h.sp.OnMinute(11, 0)
	active := h.sp.Active()
	require.Len(t, active, n)
	for _, a := range active {
		a.Tick()
		require.Equal(t, 11, a.LastBehaviorHour)
	}

	counts := map[State]int{}
	for _, s := range first {
		counts[s]++
	}
	require.Len(t, first, n)
	require.InDelta(t, 0.2, float64(counts[StateMovingToQueue])/n, 0.06)
	require.InDelta(t, 0.6, float64(counts[StateWandering])/n, 0.06)
	require.InDelta(t, 0.2, float64(counts[StateReturningToSpawn])/n, 0.06)
}

func TestZeroTickRoomUseStepStillEnds(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	h.env.Timing.RoomUseStep = Span{}
	a, _ := h.spawn(t)

	require.True(t, h.tickUntil(a, 20, func() bool { return a.State == StateUsingRoom }))
	require.True(t, h.tickUntil(a, 100, func() bool { return a.State != StateUsingRoom }))
}

func TestRoomHolderBacksOffWhileQueueFull(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	h.narrowDesk()

	blocker, _ := h.spawn(t)
	blocker.Tick()
	require.Equal(t, StateWaitingInQueue, blocker.State)

	a, nav := h.spawn(t)
	nav.hold = true
	require.True(t, a.claimRoom())
	held := a.RoomID
	a.enter(StateReportingRoomQueue)

	for i := 0; i < 10; i++ {
		a.Tick()
		require.Equal(t, StateReportingRoomQueue, a.State)
		require.Equal(t, held, a.RoomID)
		require.False(t, a.InQueue)
	}
	require.Equal(t, 1, h.desk.Len())

	blocker.Recycle(ReasonRecalled)
	require.Zero(t, h.desk.Len())

	for i := 0; i < 5 && !a.InQueue; i++ {
		a.Tick()
	}
	require.True(t, a.InQueue)
	require.Equal(t, StateReportingRoomQueue, a.State)
	require.Equal(t, held, a.RoomID)
	require.Equal(t, 1, h.desk.Len())
}

func TestFullQueueWithoutRoomFallsBack(t *testing.T) {
	for name, tc := range map[string]struct {
		draw float64
		want State
	}{
		"wander":  {0.1, StateWandering},
		"go home": {0.9, StateReturningToSpawn},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 1, testSpawnConfig())
			h.narrowDesk()

			blocker, _ := h.spawn(t)
			blocker.Tick()
			require.Equal(t, StateWaitingInQueue, blocker.State)

			a, nav := h.spawn(t)
			nav.hold = true
			nav.pos = geom.Vec3{X: 50}
			h.env.RNG = entropy.NewSequence(tc.draw)
			a.Tick()

			require.Equal(t, tc.want, a.State)
			require.False(t, a.InQueue)
			require.Equal(t, 1, h.desk.Len())
		})
	}
}

func TestRoomWanderGivesUpAfterRetryBudget(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	a, nav := h.spawn(t)
	nav.hold = true
	require.True(t, a.claimRoom())
	a.enter(StateRoomWandering)

	before := nav.dest
	nav.noPoint = true
	a.Tick()
	require.Equal(t, h.env.Timing.RoomRetries, nav.samples)
	require.Equal(t, before, nav.dest)
	require.Equal(t, StateRoomWandering, a.State)

	room, ok := h.reg.Get(a.RoomID)
	require.True(t, ok)
	nav.noPoint = false
	require.True(t, h.tickUntil(a, 10, func() bool { return nav.dest != before }))
	require.True(t, room.Bounds.Contains(nav.dest))
}

func TestStaleReferenceCannotFreeAnotherGuestsRoom(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	owner, _ := h.spawn(t)
	require.True(t, owner.claimRoom())

	intruder, _ := h.spawn(t)
	intruder.RoomID = owner.RoomID
	intruder.enter(StateRoomWandering)

	require.False(t, intruder.HoldsRoom())
	room, ok := h.reg.Get(owner.RoomID)
	require.True(t, ok)
	require.True(t, room.Occupied)
	require.Equal(t, owner.Name, room.Holder)
}

func TestRecycleDropsUnpaidCharge(t *testing.T) {
	h := newHarness(t, 1, testSpawnConfig())
	a, _ := h.spawn(t)
	require.True(t, h.tickUntil(a, 20, func() bool { return a.State == StateUsingRoom }))
	require.EqualValues(t, 100, h.billing.open[a.Name])

	a.Recycle(ReasonRecalled)
	require.Empty(t, h.billing.open)
	require.Equal(t, []int64{100}, h.billing.dropped)
	require.Empty(t, h.billing.paid)

	// A later visit's checkout owes nothing for the abandoned stay.
	require.Zero(t, h.billing.ProcessPayment(a.Name))
}
