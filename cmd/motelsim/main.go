// Command motelsim runs the motel facility simulation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/talgya/motel-sim/internal/api"
	"github.com/talgya/motel-sim/internal/config"
	"github.com/talgya/motel-sim/internal/engine"
	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/facility"
	"github.com/talgya/motel-sim/internal/persistence"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("motelsim failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("motelsim", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	port := fs.Int("port", 0, "HTTP API port (overrides config)")
	seed := fs.Int64("seed", 0, "random seed; 0 uses crypto randomness (overrides config)")
	speed := fs.Float64("speed", -1, "initial speed multiplier (overrides config)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fs.Changed("db") {
		cfg.Database.Path = *dbPath
	}
	if fs.Changed("port") {
		cfg.API.Port = *port
	}
	if fs.Changed("seed") {
		cfg.Engine.Seed = *seed
	}
	if fs.Changed("speed") {
		cfg.Engine.Speed = *speed
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	slog.Info("motel-sim starting", "config", *configPath, "seed", cfg.Engine.Seed)

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── Facility ──────────────────────────────────────────────────────
	gen := cfg.Facility
	if gen.Seed == 0 {
		gen.Seed = cfg.Engine.Seed
	}
	floor, err := facility.Generate(gen)
	if err != nil {
		return fmt.Errorf("generate facility: %w", err)
	}
	counts := floor.TileCounts()
	slog.Info("facility generated",
		"size", fmt.Sprintf("%dx%d", floor.Width, floor.Depth),
		"rooms", len(floor.Rooms),
		"walkable_grounds", counts[facility.TileGrounds],
		"blocked", counts[facility.TileBlocked],
	)

	// ── Simulation ────────────────────────────────────────────────────
	rng := randomSource(cfg.Engine.Seed)
	sim, err := engine.NewSimulation(engine.Config{
		Schedule:    cfg.Schedule,
		Timing:      cfg.Agent.Timing,
		Spawn:       cfg.Spawner,
		Counter:     cfg.Counter.Config,
		NoCounter:   !cfg.Counter.Enabled,
		WalkSpeed:   cfg.Agent.WalkSpeed,
		StartHour:   cfg.Engine.StartHour,
		StartMinute: cfg.Engine.StartMinute,
	}, floor, rng)
	if err != nil {
		return fmt.Errorf("build simulation: %w", err)
	}
	defer sim.Close()

	eng := engine.NewEngine()
	eng.Interval = cfg.Engine.Interval
	eng.TicksPerMinute = cfg.Engine.TicksPerMinute
	eng.SetSpeed(cfg.Engine.Speed)

	hasState, err := db.HasState()
	if err != nil {
		return fmt.Errorf("check saved state: %w", err)
	}
	if hasState {
		st, err := db.LoadState()
		if err != nil {
			return fmt.Errorf("load saved state: %w", err)
		}
		sim.Restore(st.Day, st.Hour, st.Minute, st.Rooms, st.Revenue, st.Settled, st.EventSeq)
		eng.Tick = st.Tick
		sim.LastTick = st.Tick
	}

	save := func(why string) {
		if err := db.SaveState(sim.Snapshot()); err != nil {
			slog.Error("save failed", "reason", why, "error", err)
		}
	}

	// Wire tick callbacks: the clock advances on its own cadence, agents
	// every tick, and state is saved daily plus every SaveInterval ticks.
	sim.OnDay = func() { save("daily") }
	eng.OnMinute = sim.AdvanceMinute
	eng.OnTick = func(tick uint64) {
		sim.Step(tick)
		if n := uint64(cfg.Database.SaveInterval); n > 0 && tick%n == 0 {
			save("interval")
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("MOTELSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("MOTELSIM_ADMIN_KEY not set; admin POST endpoints will be disabled")
	}
	streamKey := os.Getenv("MOTELSIM_STREAM_KEY")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          db,
		Port:        cfg.API.Port,
		AdminKey:    adminKey,
		StreamKey:   streamKey,
		AdminRate:   cfg.API.AdminRate,
		AdminWindow: cfg.API.AdminWindow,
		MaxStreams:  cfg.API.MaxStreams,
	}
	apiErr := make(chan error, 1)
	go func() { apiErr <- apiServer.Start(ctx) }()

	// ── Start ─────────────────────────────────────────────────────────
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("received signal, shutting down")
		case err := <-apiErr:
			if err != nil {
				slog.Error("HTTP server error", "error", err)
			}
		}
		eng.Stop()
	}()

	fmt.Printf("\nMotel open: %d rooms, %d guests in the pool, spawning at %v.\n",
		len(floor.Rooms), cfg.Spawner.PoolSize, sim.Spawner.TriggerHours())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if hasState {
		fmt.Printf("Resuming from tick %d (%s)\n", eng.Tick, sim.Clock.String())
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run(ctx)

	// Final save on shutdown.
	slog.Info("final save...")
	save("shutdown")
	fmt.Println("Simulation stopped. State saved.")
	return nil
}

// randomSource picks the simulation's random source: a seeded generator
// for reproducible runs, random.org when RANDOM_ORG_API_KEY is set, and
// crypto/rand otherwise.
func randomSource(seed int64) entropy.Source {
	if seed != 0 {
		return entropy.NewSeeded(seed)
	}
	if ro := entropy.NewRandomOrg(os.Getenv("RANDOM_ORG_API_KEY")); ro != nil {
		slog.Info("using random.org entropy")
		return ro
	}
	return entropy.Crypto{}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: log level %q", config.ErrInvalid, s)
}
