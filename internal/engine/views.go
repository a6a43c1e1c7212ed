package engine

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/talgya/motel-sim/internal/agents"
	"github.com/talgya/motel-sim/internal/billing"
	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

// Status is the top-level summary served by the API.
type Status struct {
	RunID     string   `json:"run_id"`
	Tick      uint64   `json:"tick"`
	Time      string   `json:"time"`
	Day       int      `json:"day"`
	Hour      int      `json:"hour"`
	Minute    int      `json:"minute"`
	Active    int      `json:"active_agents"`
	Pooled    int      `json:"pooled_agents"`
	Pending   int      `json:"pending_spawns"`
	Discarded int      `json:"discarded_agents"`
	Rooms     int      `json:"rooms"`
	Occupied  int      `json:"occupied_rooms"`
	Queue     int      `json:"queue_length"`
	Revenue   int64    `json:"revenue"`
	Triggers  []int    `json:"spawn_hours"`
	Today     DayStats `json:"today"`
}

// Status returns the current summary.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, hour, minute := s.Clock.Now()
	total, occupied := s.Rooms.Counts()
	return Status{
		RunID:     s.RunID.String(),
		Tick:      s.LastTick,
		Time:      SimTime(day, hour, minute),
		Day:       day,
		Hour:      hour,
		Minute:    minute,
		Active:    s.Spawner.ActiveCount(),
		Pooled:    s.Spawner.PooledCount(),
		Pending:   s.Spawner.Pending(),
		Discarded: s.Spawner.Discarded(),
		Rooms:     total,
		Occupied:  occupied,
		Queue:     s.Desk.Len(),
		Revenue:   s.Ledger.Revenue(),
		Triggers:  s.Spawner.TriggerHours(),
		Today:     s.Stats,
	}
}

// AgentViews returns every agent, active ones first, ordered by id.
func (s *Simulation) AgentViews(activeOnly bool) []agents.View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []agents.View
	for _, a := range s.Spawner.All() {
		if activeOnly && !a.Active {
			continue
		}
		out = append(out, a.View())
	}
	slices.SortStableFunc(out, func(a, b agents.View) int {
		if a.Active != b.Active {
			if a.Active {
				return -1
			}
			return 1
		}
		return int(a.ID) - int(b.ID)
	})
	return out
}

// AgentView returns one agent.
func (s *Simulation) AgentView(id agents.AgentID) (agents.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.Spawner.Find(id)
	if !ok {
		return agents.View{}, false
	}
	return a.View(), true
}

// RoomsSnapshot returns the registry contents.
func (s *Simulation) RoomsSnapshot() []rooms.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Rooms.Snapshot()
}

// CounterSnapshot returns the front desk state.
func (s *Simulation) CounterSnapshot() counter.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Desk.Snapshot()
}

// LedgerSummary returns billing totals with the last limit payments.
func (s *Simulation) LedgerSummary(limit int) billing.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Ledger.Summary(limit)
}

// RecentEvents returns up to limit of the newest events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.Events) > limit {
		start = len(s.Events) - limit
	}
	return slices.Clone(s.Events[start:])
}

// ── Admin ──────────────────────────────────────────────────────────

// ManualSpawn schedules count activations; negative draws from the
// configured range.
func (s *Simulation) ManualSpawn(count int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.Spawner.ManualSpawn(count)
	s.emit("admin", "", fmt.Sprintf("manual spawn of %d agent(s)", n))
	return n
}

// SetSpawnSettings replaces the spawn schedule.
func (s *Simulation) SetSpawnSettings(minSpawn, maxSpawn, startHour, endHour, interval int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Spawner.SetSpawnSettings(minSpawn, maxSpawn, startHour, endHour, interval); err != nil {
		return err
	}
	s.emit("admin", "", fmt.Sprintf("spawn settings: %d-%d agents at %v",
		minSpawn, maxSpawn, s.Spawner.TriggerHours()))
	return nil
}

// RecallAll sends every active agent back to the pool.
func (s *Simulation) RecallAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.Spawner.ReturnAll()
	s.emit("admin", "", fmt.Sprintf("recalled %d agent(s)", n))
	return n
}

// Displace moves an active agent to (x, z) without pathing. Off the
// walkable floor the agent is recycled on its next tick.
func (s *Simulation) Displace(id agents.AgentID, x, z float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.Spawner.Find(id)
	w, hasWalker := s.walkers[id]
	if !ok || !hasWalker || !a.Active {
		return false
	}
	w.Displace(geom.Vec3{X: x, Z: z})
	s.emit("admin", a.Name, fmt.Sprintf("displaced to (%.1f, %.1f)", x, z))
	return true
}

// Rescan runs room discovery now and merges the result.
func (s *Simulation) Rescan() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := s.Rooms.Upsert(s.Detector.Scan())
	// Drain the batch the scan just published so it is not merged twice.
	s.pullDiscoveries()
	slog.Info("rooms rescanned", "added", added)
	return added
}

// ── Persistence ────────────────────────────────────────────────────

// Snapshot is the persisted portion of the simulation.
type Snapshot struct {
	RunID    string
	Tick     uint64
	Day      int
	Hour     int
	Minute   int
	EventSeq uint64
	Rooms    []rooms.Room
	Events   []Event
	Ledger   billing.Summary
}

// Snapshot copies the state to persist.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day, hour, minute := s.Clock.Now()
	return Snapshot{
		RunID:    s.RunID.String(),
		Tick:     s.LastTick,
		Day:      day,
		Hour:     hour,
		Minute:   minute,
		EventSeq: s.eventSeq,
		Rooms:    s.Rooms.Snapshot(),
		Events:   slices.Clone(s.Events),
		Ledger:   s.Ledger.Summary(0),
	}
}

// Restore resumes a saved clock, room catalogue and billing totals.
// Agents are not persisted, so every room comes back free.
func (s *Simulation) Restore(day, hour, minute int, saved []rooms.Room, revenue int64, settled, eventSeq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Clock.SetDay(day)
	s.Clock.Set(hour, minute)
	for i := range saved {
		saved[i].Occupied = false
		saved[i].Holder = ""
	}
	added := s.Rooms.Upsert(saved)
	s.Ledger.Restore(revenue, settled)
	if eventSeq > s.eventSeq {
		s.eventSeq = eventSeq
	}
	s.emit("system", "", fmt.Sprintf("resumed at %s", s.Clock.String()))
	slog.Info("simulation restored", "time", s.Clock.String(), "rooms_added", added, "revenue", revenue)
}
