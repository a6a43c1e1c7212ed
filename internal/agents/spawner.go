// Agent spawning: a fixed pool of preallocated guests activated at
// configured hours and recycled when they leave.
package agents

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/talgya/motel-sim/internal/entropy"
)

// SpawnConfig controls the pool and the spawn schedule.
type SpawnConfig struct {
	PoolSize     int `yaml:"pool_size"`
	MinSpawn     int `yaml:"min_spawn"`
	MaxSpawn     int `yaml:"max_spawn"`
	StartHour    int `yaml:"start_hour"`
	EndHour      int `yaml:"end_hour"`
	Interval     int `yaml:"interval"`      // Hours between triggers
	StaggerTicks int `yaml:"stagger_ticks"` // Delay between activations of one batch
}

// DefaultSpawnConfig spawns 1–3 guests every two hours from 09:00 to 17:00.
func DefaultSpawnConfig() SpawnConfig {
	return SpawnConfig{
		PoolSize:     20,
		MinSpawn:     1,
		MaxSpawn:     3,
		StartHour:    9,
		EndHour:      17,
		Interval:     2,
		StaggerTicks: 2,
	}
}

// Validate checks the schedule bounds.
func (c SpawnConfig) Validate() error {
	switch {
	case c.PoolSize < 0:
		return fmt.Errorf("pool size %d is negative", c.PoolSize)
	case c.MinSpawn < 1:
		return fmt.Errorf("min spawn %d must be at least 1", c.MinSpawn)
	case c.MaxSpawn < c.MinSpawn:
		return fmt.Errorf("max spawn %d below min spawn %d", c.MaxSpawn, c.MinSpawn)
	case c.Interval < 1:
		return fmt.Errorf("interval %d must be at least 1", c.Interval)
	case c.StartHour < 0 || c.StartHour > 23 || c.EndHour < 0 || c.EndHour > 23:
		return fmt.Errorf("spawn hours %d..%d out of range", c.StartHour, c.EndHour)
	case c.EndHour < c.StartHour:
		return fmt.Errorf("end hour %d before start hour %d", c.EndHour, c.StartHour)
	case c.StaggerTicks < 0:
		return fmt.Errorf("stagger %d is negative", c.StaggerTicks)
	}
	return nil
}

// triggerHours lists start, start+interval, ... up to end inclusive.
func (c SpawnConfig) triggerHours() []int {
	var hours []int
	for h := c.StartHour; h <= c.EndHour; h += c.Interval {
		hours = append(hours, h)
	}
	return hours
}

// Spawner owns the agent pool. It is the Recycler of every agent it
// creates. Activation runs outside the spawner lock.
type Spawner struct {
	mu  sync.Mutex
	cfg SpawnConfig
	env *Env

	all    []*Agent
	pool   []*Agent // FIFO of inactive agents
	active []*Agent

	triggers      []int
	lastSpawnHour int

	pending int // Activations still owed by the current batch
	wait    int // Ticks until the next pending activation

	discarded int
	exhausted int

	// OnActivate is called after each successful activation.
	OnActivate func(a *Agent)
}

// NewSpawner preallocates cfg.PoolSize inactive agents. navFor builds the
// navigator for each; env.Pool is pointed at the spawner.
func NewSpawner(cfg SpawnConfig, env *Env, navFor func(AgentID) Navigator) (*Spawner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("spawner config: %w", err)
	}

	s := &Spawner{
		cfg:           cfg,
		env:           env,
		triggers:      cfg.triggerHours(),
		lastSpawnHour: -1,
	}
	env.Pool = s

	for i := 1; i <= cfg.PoolSize; i++ {
		id := AgentID(i)
		var nav Navigator
		if navFor != nil {
			nav = navFor(id)
		}
		a := NewAgent(id, nav, env)
		s.all = append(s.all, a)
		s.pool = append(s.pool, a)
	}

	slog.Info("spawner ready", "pool", cfg.PoolSize, "triggers", s.triggers)
	return s, nil
}

// OnMinute is subscribed to the clock. At the top of a trigger hour it
// schedules one batch; a second call in the same hour is ignored.
func (s *Spawner) OnMinute(hour, minute int) {
	s.mu.Lock()
	if s.lastSpawnHour >= 0 && hour != s.lastSpawnHour {
		s.lastSpawnHour = -1
	}
	if minute != 0 || hour == s.lastSpawnHour || !slices.Contains(s.triggers, hour) {
		s.mu.Unlock()
		return
	}
	s.lastSpawnHour = hour
	n := entropy.Range(s.env.RNG, s.cfg.MinSpawn, s.cfg.MaxSpawn)
	s.pending += n
	s.mu.Unlock()

	slog.Info("spawn triggered", "hour", hour, "count", n)
	s.drain(true)
}

// Tick releases the next staggered activation when it is due.
func (s *Spawner) Tick() {
	s.drain(false)
}

// drain activates pending agents. A fresh batch starts immediately when
// nothing is waiting; otherwise one agent goes out per stagger period.
func (s *Spawner) drain(fresh bool) {
	for {
		s.mu.Lock()
		if s.pending == 0 {
			s.wait = 0
			s.mu.Unlock()
			return
		}
		if s.wait > 0 {
			if !fresh {
				s.wait--
			}
			if s.wait > 0 || fresh {
				s.mu.Unlock()
				return
			}
		}
		s.pending--
		s.wait = s.cfg.StaggerTicks
		stagger := s.wait
		s.mu.Unlock()

		if _, err := s.spawnOne(); err != nil {
			slog.Warn("spawn skipped", "error", err)
		}
		if stagger > 0 {
			return
		}
	}
}

// spawnOne pops the oldest pooled agent and activates it. An agent that
// fails activation is discarded rather than returned to the pool.
func (s *Spawner) spawnOne() (*Agent, error) {
	s.mu.Lock()
	if len(s.pool) == 0 {
		s.exhausted++
		s.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	a := s.pool[0]
	s.pool = s.pool[1:]
	s.mu.Unlock()

	if err := a.activate(); err != nil {
		s.mu.Lock()
		s.discarded++
		s.mu.Unlock()
		a.Active = false
		return nil, fmt.Errorf("activate %s: %w", a.Name, err)
	}

	s.mu.Lock()
	s.active = append(s.active, a)
	s.mu.Unlock()

	slog.Debug("agent activated", "agent", a.Name, "activations", a.Activations)
	if s.OnActivate != nil {
		s.OnActivate(a)
	}
	return a, nil
}

// ReturnToPool deactivates a and queues it for reuse. Nil and already
// pooled agents are ignored.
func (s *Spawner) ReturnToPool(a *Agent) {
	if a == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !a.Active {
		return
	}
	a.Active = false
	if i := slices.Index(s.active, a); i >= 0 {
		s.active = slices.Delete(s.active, i, i+1)
	}
	s.pool = append(s.pool, a)
}

// ReturnAll recalls every active agent and drops any pending activations.
func (s *Spawner) ReturnAll() int {
	s.mu.Lock()
	s.pending = 0
	s.wait = 0
	active := slices.Clone(s.active)
	s.mu.Unlock()

	for _, a := range active {
		a.Recycle(ReasonRecalled)
	}
	slog.Info("all agents recalled", "count", len(active))
	return len(active)
}

// ManualSpawn schedules count activations now; a negative count draws
// from the configured range. Returns the number scheduled.
func (s *Spawner) ManualSpawn(count int) int {
	s.mu.Lock()
	if count < 0 {
		count = entropy.Range(s.env.RNG, s.cfg.MinSpawn, s.cfg.MaxSpawn)
	}
	s.pending += count
	s.mu.Unlock()

	slog.Info("manual spawn", "count", count)
	s.drain(true)
	return count
}

// SetSpawnSettings replaces the schedule, rebuilding the trigger list and
// re-arming the current hour. Pool size is fixed at construction.
func (s *Spawner) SetSpawnSettings(minSpawn, maxSpawn, startHour, endHour, interval int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	cfg.MinSpawn, cfg.MaxSpawn = minSpawn, maxSpawn
	cfg.StartHour, cfg.EndHour, cfg.Interval = startHour, endHour, interval
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("spawn settings: %w", err)
	}
	s.cfg = cfg
	s.triggers = cfg.triggerHours()
	s.lastSpawnHour = -1
	slog.Info("spawn settings changed", "min", minSpawn, "max", maxSpawn, "triggers", s.triggers)
	return nil
}

// Active returns a copy of the active list.
func (s *Spawner) Active() []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.active)
}

// All returns every agent the spawner owns, pooled or not.
func (s *Spawner) All() []*Agent {
	return s.all
}

// Find returns the agent with the given id.
func (s *Spawner) Find(id AgentID) (*Agent, bool) {
	if id < 1 || int(id) > len(s.all) {
		return nil, false
	}
	return s.all[id-1], true
}

func (s *Spawner) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Spawner) PooledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pool)
}

// Discarded counts agents dropped after a failed activation.
func (s *Spawner) Discarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// Exhausted counts activations skipped because the pool was empty.
func (s *Spawner) Exhausted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// Pending is the number of activations still owed.
func (s *Spawner) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// TriggerHours returns the spawn hours.
func (s *Spawner) TriggerHours() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.triggers)
}

// Config returns the current spawn settings.
func (s *Spawner) Config() SpawnConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}
