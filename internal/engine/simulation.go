// Simulation ties together all facility systems and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/motel-sim/internal/agents"
	"github.com/talgya/motel-sim/internal/billing"
	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/facility"
	"github.com/talgya/motel-sim/internal/metrics"
	"github.com/talgya/motel-sim/internal/rooms"
)

// maxEvents is the number of recent events kept in memory.
const maxEvents = 1000

// Config holds the simulation tunables.
type Config struct {
	Schedule    agents.Schedule
	Timing      agents.Timing
	Spawn       agents.SpawnConfig
	Counter     counter.Config
	NoCounter   bool    // Run without a front desk; agents use the fallback policy
	WalkSpeed   float64 // World units per tick
	StartHour   int
	StartMinute int
}

// Simulation holds the complete facility state and wires systems together.
// Step and the admin methods take the write lock; the read accessors take
// the read lock and return copies.
type Simulation struct {
	mu sync.RWMutex

	RunID    uuid.UUID
	Clock    *Clock
	Floor    *facility.Floor
	Rooms    *rooms.Registry
	Desk     *counter.Desk
	Ledger   *billing.Ledger
	Spawner  *agents.Spawner
	Detector *facility.Detector
	Metrics  *metrics.Metrics

	Events   []Event // Last maxEvents events
	LastTick uint64
	Stats    DayStats

	// OnDay runs after the midnight summary, outside the simulation lock.
	OnDay func()

	env           *agents.Env
	walkers       map[agents.AgentID]*facility.Walker
	discoveries   <-chan []rooms.Room
	stopDiscovery func()
	eventSeq      uint64
	exhausted     int
	dayDue        bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// Event is a notable occurrence in the facility.
type Event struct {
	Seq         uint64 `json:"seq"`
	Tick        uint64 `json:"tick"`
	Time        string `json:"time"`
	Category    string `json:"category"` // "spawn", "recycle", "intent", "room", "payment", "admin", "system"
	Agent       string `json:"agent,omitempty"`
	Description string `json:"description"`
}

// DayStats tracks aggregate statistics since the last midnight.
type DayStats struct {
	Arrivals   int   `json:"arrivals"`
	Departures int   `json:"departures"`
	Claims     int   `json:"claims"`
	Rejections int   `json:"claim_rejections"`
	Payments   int   `json:"payments"`
	Revenue    int64 `json:"revenue"`
}

// NewSimulation builds every system over floor. rng drives all stochastic
// decisions; nil uses crypto/rand.
func NewSimulation(cfg Config, floor *facility.Floor, rng entropy.Source) (*Simulation, error) {
	if rng == nil {
		rng = entropy.Crypto{}
	}

	s := &Simulation{
		RunID:    uuid.New(),
		Clock:    NewClock(cfg.StartHour, cfg.StartMinute),
		Floor:    floor,
		Rooms:    rooms.NewRegistry(rng),
		Detector: facility.NewDetector(floor),
		walkers:  make(map[agents.AgentID]*facility.Walker),
		subs:     make(map[int]chan Event),
	}

	dc := cfg.Counter
	dc.Position, dc.Direction = floor.Counter, floor.QueueDir
	s.Desk = counter.NewDesk(dc)
	s.Ledger = billing.NewLedger(s.stamp)

	s.Metrics = metrics.New(metrics.Gauges{
		ActiveAgents:  func() float64 { return float64(s.Spawner.ActiveCount()) },
		PooledAgents:  func() float64 { return float64(s.Spawner.PooledCount()) },
		QueueLength:   func() float64 { return float64(s.Desk.Len()) },
		RoomsTotal:    func() float64 { total, _ := s.Rooms.Counts(); return float64(total) },
		RoomsOccupied: func() float64 { _, occupied := s.Rooms.Counts(); return float64(occupied) },
	})

	s.env = &agents.Env{
		Clock:   s.Clock,
		Rooms:   s.Rooms,
		Billing: s.Ledger,
		Policy:  agents.Policy{Schedule: cfg.Schedule},
		Timing:  cfg.Timing,
		Spawn:   floor.Spawn,
		RNG:     rng,
		Hooks: agents.Hooks{
			OnTransition: s.onTransition,
			OnRecycle:    s.onRecycle,
			OnClaim:      s.onClaim,
			OnPayment:    s.onPayment,
		},
	}

	if !cfg.NoCounter {
		s.env.Counter = s.Desk
	}

	sp, err := agents.NewSpawner(cfg.Spawn, s.env, func(id agents.AgentID) agents.Navigator {
		w := facility.NewWalker(floor, cfg.WalkSpeed, rng)
		s.walkers[id] = w
		return w
	})
	if err != nil {
		return nil, err
	}
	s.Spawner = sp
	sp.OnActivate = s.onActivate

	added := s.Rooms.Upsert(s.Detector.Scan())
	s.discoveries, s.stopDiscovery = s.Detector.Subscribe()

	s.Clock.OnMinute(sp.OnMinute)
	s.Clock.OnMinute(s.onMinute)

	slog.Info("simulation ready",
		"run", s.RunID,
		"rooms", added,
		"pool", cfg.Spawn.PoolSize,
		"time", s.Clock.String(),
	)
	return s, nil
}

// Env exposes the agent environment.
func (s *Simulation) Env() *agents.Env {
	return s.env
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastTick
}

// ── Tick layers ────────────────────────────────────────────────────

// AdvanceMinute moves the clock one minute; spawn triggers and the hourly
// and daily work run from its subscribers.
func (s *Simulation) AdvanceMinute(tick uint64) {
	s.mu.Lock()
	s.LastTick = tick
	s.Clock.Advance()
	due := s.dayDue
	s.dayDue = false
	s.mu.Unlock()

	if due && s.OnDay != nil {
		s.OnDay()
	}
}

// Step runs one scheduling tick: walkers move, the desk serves, staggered
// activations go out, and every active agent ticks.
func (s *Simulation) Step(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastTick = tick
	s.Metrics.Ticks.Inc()
	s.pullDiscoveries()

	for _, a := range s.Spawner.Active() {
		if w := s.walkers[a.ID]; w != nil {
			w.Step()
		}
	}
	s.Desk.Tick()
	s.Spawner.Tick()
	for _, a := range s.Spawner.Active() {
		a.Tick()
	}

	if n := s.Spawner.Exhausted(); n > s.exhausted {
		s.Metrics.Exhausted.Add(float64(n - s.exhausted))
		s.emit("system", "", fmt.Sprintf("agent pool exhausted, %d activation(s) skipped", n-s.exhausted))
		s.exhausted = n
	}
}

func (s *Simulation) onMinute(hour, minute int) {
	if minute != 0 {
		return
	}
	s.Detector.Scan()
	if hour == 0 {
		s.dailySummary()
		s.dayDue = true
	}
}

// pullDiscoveries merges any published room batch into the registry.
func (s *Simulation) pullDiscoveries() int {
	added := 0
	for {
		select {
		case batch, ok := <-s.discoveries:
			if !ok {
				return added
			}
			added += s.Rooms.Upsert(batch)
		default:
			if added > 0 {
				s.emit("room", "", fmt.Sprintf("%d new room(s) discovered", added))
			}
			return added
		}
	}
}

func (s *Simulation) dailySummary() {
	total, occupied := s.Rooms.Counts()
	slog.Info("daily report",
		"tick", s.LastTick,
		"time", s.Clock.String(),
		"arrivals", s.Stats.Arrivals,
		"departures", s.Stats.Departures,
		"claims", s.Stats.Claims,
		"claim_rejections", s.Stats.Rejections,
		"payments", s.Stats.Payments,
		"revenue", s.Stats.Revenue,
		"rooms", total,
		"occupied", occupied,
		"active", s.Spawner.ActiveCount(),
	)
	s.Stats = DayStats{}
}

// ── Agent hooks (called under the simulation lock) ──────────────────

func (s *Simulation) onActivate(a *agents.Agent) {
	s.Stats.Arrivals++
	s.Metrics.Spawns.Inc()
	s.emit("spawn", a.Name, fmt.Sprintf("%s arrived (visit %d)", a.Name, a.Activations))
}

func (s *Simulation) onTransition(a *agents.Agent, from, to agents.State) {
	s.Metrics.Transitions.WithLabelValues(from.String(), to.String()).Inc()
	s.emit("intent", a.Name, fmt.Sprintf("%s %s", a.Name, a.Intent))
}

func (s *Simulation) onRecycle(a *agents.Agent, reason string) {
	s.Stats.Departures++
	s.Metrics.Recycles.WithLabelValues(reason).Inc()
	s.emit("recycle", a.Name, fmt.Sprintf("%s left (%s)", a.Name, reason))
}

func (s *Simulation) onClaim(a *agents.Agent, room rooms.Room, ok bool) {
	if !ok {
		s.Stats.Rejections++
		s.Metrics.Claims.WithLabelValues("none").Inc()
		s.emit("room", a.Name, fmt.Sprintf("no room available for %s", a.Name))
		return
	}
	s.Stats.Claims++
	s.Metrics.Claims.WithLabelValues("claimed").Inc()
	s.emit("room", a.Name, fmt.Sprintf("%s checked into %s", a.Name, room.Name))
}

func (s *Simulation) onPayment(a *agents.Agent, amount int64) {
	if amount <= 0 {
		return
	}
	s.Stats.Payments++
	s.Stats.Revenue += amount
	s.Metrics.Payments.Inc()
	s.Metrics.Revenue.Add(float64(amount))
	s.emit("payment", a.Name, fmt.Sprintf("%s paid %d", a.Name, amount))
}

// ── Events ─────────────────────────────────────────────────────────

func (s *Simulation) stamp() billing.Stamp {
	return billing.Stamp{Tick: s.LastTick, Time: s.Clock.String()}
}

// emit records an event and fans it out. Caller holds the write lock.
func (s *Simulation) emit(category, agent, description string) {
	s.eventSeq++
	e := Event{
		Seq:         s.eventSeq,
		Tick:        s.LastTick,
		Time:        s.Clock.String(),
		Category:    category,
		Agent:       agent,
		Description: description,
	}
	s.Events = append(s.Events, e)
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
	s.publish(e)
}

// EmitEvent records an externally produced event.
func (s *Simulation) EmitEvent(category, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(category, "", description)
}

// Subscribe registers a listener for new events. Slow listeners miss
// events rather than block the simulation.
func (s *Simulation) Subscribe() (int, <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (s *Simulation) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Simulation) publish(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close detaches the simulation from its detector and subscribers.
func (s *Simulation) Close() {
	s.stopDiscovery()
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
