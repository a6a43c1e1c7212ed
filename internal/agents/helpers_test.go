package agents

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

type fakeClock struct{ hour, minute int }

func (c *fakeClock) Hour() int            { return c.hour }
func (c *fakeClock) Minute() int          { return c.minute }
func (c *fakeClock) set(hour, minute int) { c.hour, c.minute = hour, minute }

// fakeNav teleports to every destination unless hold is set. Point
// sampling returns the centre unless noPoint is set.
type fakeNav struct {
	pos, dest geom.Vec3
	hold      bool
	off       bool
	noPoint   bool
	samples   int
}

func (n *fakeNav) SetDestination(p geom.Vec3) {
	n.dest = p
	if !n.hold {
		n.pos = p
	}
}
func (n *fakeNav) PathPending() bool          { return false }
func (n *fakeNav) RemainingDistance() float64 { return geom.Dist(n.pos, n.dest) }
func (n *fakeNav) OnNavigableSurface() bool   { return !n.off }
func (n *fakeNav) Position() geom.Vec3        { return n.pos }
func (n *fakeNav) Warp(p geom.Vec3)           { n.pos, n.dest = p, p }
func (n *fakeNav) SampleWalkablePoint(center geom.Vec3, _ float64) (geom.Vec3, bool) {
	n.samples++
	if n.noPoint {
		return geom.Vec3{}, false
	}
	return center, true
}

type fakeBilling struct {
	open    map[string]int64
	paid    []int64
	dropped []int64
}

func (b *fakeBilling) ReportUsageStart(agentID string, room rooms.Room) {
	b.open[agentID] = room.Price
}

func (b *fakeBilling) ProcessPayment(agentID string) int64 {
	amount := b.open[agentID]
	delete(b.open, agentID)
	b.paid = append(b.paid, amount)
	return amount
}

func (b *fakeBilling) DropUsage(agentID string) bool {
	amount, ok := b.open[agentID]
	if ok {
		delete(b.open, agentID)
		b.dropped = append(b.dropped, amount)
	}
	return ok
}

type harness struct {
	clock   *fakeClock
	desk    *counter.Desk
	reg     *rooms.Registry
	billing *fakeBilling
	env     *Env
	navs    map[AgentID]*fakeNav
	sp      *Spawner

	transitions []string
}

func newHarness(t *testing.T, roomCount int, cfg SpawnConfig) *harness {
	t.Helper()

	h := &harness{
		clock:   &fakeClock{hour: 12, minute: 30},
		reg:     rooms.NewRegistry(entropy.NewSeeded(3)),
		billing: &fakeBilling{open: map[string]int64{}},
		navs:    map[AgentID]*fakeNav{},
	}
	var batch []rooms.Room
	for i := 0; i < roomCount; i++ {
		b := geom.BoundsFromCenter(geom.Vec3{X: float64(20 + i*10), Y: 2, Z: 10}, geom.Vec3{X: 4, Y: 4, Z: 4})
		batch = append(batch, rooms.New(fmt.Sprintf("Room %d", i+1), b, []rooms.Furniture{{Name: "bed", Price: 100}}))
	}
	h.reg.Upsert(batch)

	dc := counter.DefaultConfig()
	dc.Position = geom.Vec3{X: 5, Z: 5}
	h.desk = counter.NewDesk(dc)

	h.env = &Env{
		Clock:   h.clock,
		Rooms:   h.reg,
		Counter: h.desk,
		Billing: h.billing,
		Policy:  Policy{Schedule: DefaultSchedule()},
		Timing:  DefaultTiming(),
		RNG:     entropy.NewSeeded(11),
		Hooks: Hooks{
			OnTransition: func(a *Agent, from, to State) {
				h.transitions = append(h.transitions, fmt.Sprintf("%s:%s->%s", a.Name, from, to))
			},
		},
	}

	sp, err := NewSpawner(cfg, h.env, func(id AgentID) Navigator {
		n := &fakeNav{}
		h.navs[id] = n
		return n
	})
	require.NoError(t, err)
	h.sp = sp
	return h
}

func testSpawnConfig() SpawnConfig {
	cfg := DefaultSpawnConfig()
	cfg.PoolSize = 4
	cfg.MinSpawn, cfg.MaxSpawn = 1, 1
	cfg.StaggerTicks = 0
	return cfg
}

// narrowDesk swaps in a counter that admits a single customer.
func (h *harness) narrowDesk() {
	dc := counter.DefaultConfig()
	dc.Position = geom.Vec3{X: 5, Z: 5}
	dc.Capacity = 1
	h.desk = counter.NewDesk(dc)
	h.env.Counter = h.desk
}

// spawn activates one agent immediately.
func (h *harness) spawn(t *testing.T) (*Agent, *fakeNav) {
	t.Helper()
	before := h.sp.ActiveCount()
	h.sp.ManualSpawn(1)
	active := h.sp.Active()
	require.Len(t, active, before+1)
	a := active[len(active)-1]
	return a, h.navs[a.ID]
}

func (h *harness) tickUntil(a *Agent, limit int, done func() bool) bool {
	for i := 0; i < limit; i++ {
		if done() {
			return true
		}
		h.desk.Tick()
		a.Tick()
	}
	return done()
}
