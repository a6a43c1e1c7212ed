// Package config loads the motel-sim YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/motel-sim/internal/agents"
	"github.com/talgya/motel-sim/internal/counter"
	"github.com/talgya/motel-sim/internal/facility"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	LogLevel string `yaml:"log_level"`

	Engine   Engine             `yaml:"engine"`
	Schedule agents.Schedule    `yaml:"schedule"`
	Spawner  agents.SpawnConfig `yaml:"spawner"`
	Agent    Agent              `yaml:"agent"`
	Counter  Counter            `yaml:"counter"`
	Facility facility.GenConfig `yaml:"facility"`
	Database Database           `yaml:"database"`
	API      API                `yaml:"api"`
}

type Engine struct {
	Interval       time.Duration `yaml:"interval"` // Tick interval at speed 1
	TicksPerMinute int           `yaml:"ticks_per_minute"`
	Speed          float64       `yaml:"speed"`
	StartHour      int           `yaml:"start_hour"`
	StartMinute    int           `yaml:"start_minute"`
	Seed           int64         `yaml:"seed"` // 0 = crypto random
}

type Agent struct {
	agents.Timing `yaml:",inline"`
	WalkSpeed     float64 `yaml:"walk_speed"`
}

type Counter struct {
	Enabled        bool `yaml:"enabled"`
	counter.Config `yaml:",inline"`
}

type Database struct {
	Path         string `yaml:"path"`
	SaveInterval int    `yaml:"save_interval"` // Ticks between saves; 0 = daily only
}

type API struct {
	Port        int           `yaml:"port"`
	AdminRate   int           `yaml:"admin_rate"` // Admin requests per window per client
	AdminWindow time.Duration `yaml:"admin_window"`
	MaxStreams  int           `yaml:"max_streams"`
}

// Default returns the stock configuration.
func Default() Config {
	spawn := agents.DefaultSpawnConfig()
	spawn.PoolSize = 200
	spawn.MaxSpawn = 5

	return Config{
		LogLevel: "info",
		Engine: Engine{
			Interval:       time.Second,
			TicksPerMinute: 1,
			Speed:          1,
			StartHour:      8,
		},
		Schedule: agents.DefaultSchedule(),
		Spawner:  spawn,
		Agent:    Agent{Timing: agents.DefaultTiming(), WalkSpeed: 1.5},
		Counter:  Counter{Enabled: true, Config: counter.DefaultConfig()},
		Facility: facility.DefaultGenConfig(),
		Database: Database{Path: "data/motelsim.db", SaveInterval: 600},
		API: API{
			Port:        8080,
			AdminRate:   30,
			AdminWindow: time.Minute,
			MaxStreams:  4,
		},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the simulation cannot run with.
func (c Config) Validate() error {
	e := c.Engine
	switch {
	case e.Interval <= 0:
		return fmt.Errorf("%w: engine.interval must be positive", ErrInvalid)
	case e.TicksPerMinute < 1:
		return fmt.Errorf("%w: engine.ticks_per_minute must be at least 1", ErrInvalid)
	case e.Speed < 0:
		return fmt.Errorf("%w: engine.speed must not be negative", ErrInvalid)
	case !validHour(e.StartHour) || e.StartMinute < 0 || e.StartMinute > 59:
		return fmt.Errorf("%w: engine start time %d:%d", ErrInvalid, e.StartHour, e.StartMinute)
	}

	s := c.Schedule
	if !validHour(s.DayStart) || !validHour(s.Close) ||
		s.DayStart > s.ReportStart || s.ReportStart > s.ActiveStart || s.ActiveStart > s.Close {
		return fmt.Errorf("%w: schedule hours must be ordered within 0..23", ErrInvalid)
	}

	if err := c.Spawner.Validate(); err != nil {
		return fmt.Errorf("%w: spawner: %v", ErrInvalid, err)
	}
	if err := validateTiming(c.Agent.Timing); err != nil {
		return err
	}
	if c.Agent.WalkSpeed <= 0 {
		return fmt.Errorf("%w: agent.walk_speed must be positive", ErrInvalid)
	}

	if c.Counter.Capacity < 1 || c.Counter.ServiceTicks < 1 || c.Counter.SlotSpacing <= 0 {
		return fmt.Errorf("%w: counter needs capacity, service_ticks and slot_spacing", ErrInvalid)
	}
	if err := c.Facility.Validate(); err != nil {
		return fmt.Errorf("%w: facility: %v", ErrInvalid, err)
	}

	if c.Database.SaveInterval < 0 {
		return fmt.Errorf("%w: database.save_interval must not be negative", ErrInvalid)
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("%w: api.port %d", ErrInvalid, c.API.Port)
	}
	if c.API.AdminRate < 1 || c.API.AdminWindow <= 0 {
		return fmt.Errorf("%w: api admin rate limit", ErrInvalid)
	}
	return nil
}

func validateTiming(t agents.Timing) error {
	if t.ArrivalDistance <= 0 || t.WanderRadius <= 0 || t.RoomRetries < 1 {
		return fmt.Errorf("%w: agent arrival_distance, wander_radius and room_retries must be positive", ErrInvalid)
	}
	spans := map[string]agents.Span{
		"wander":           t.Wander,
		"wander_step":      t.WanderStep,
		"room_wander":      t.RoomWander,
		"room_wander_step": t.RoomWanderStep,
		"room_use":         t.RoomUse,
		"room_use_step":    t.RoomUseStep,
		"queue_backoff":    t.QueueBackoff,
		"report_detour":    t.ReportDetour,
	}
	for name, s := range spans {
		if s.Min < 0 || s.Max < s.Min {
			return fmt.Errorf("%w: agent.%s range %d..%d", ErrInvalid, name, s.Min, s.Max)
		}
	}
	// A zero-tick sub-wait never advances its routine.
	for name, s := range map[string]agents.Span{
		"wander_step":      t.WanderStep,
		"room_wander_step": t.RoomWanderStep,
		"room_use_step":    t.RoomUseStep,
	} {
		if s.Min < 1 {
			return fmt.Errorf("%w: agent.%s must be at least 1 tick", ErrInvalid, name)
		}
	}
	return nil
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
