// Command steward runs the facility's night manager.
// It observes the motel through the public API, triages with fixed rules,
// and acts via the admin endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/motel-sim/internal/steward"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := envOrDefault("MOTELSIM_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("MOTELSIM_ADMIN_KEY")
	intervalSec := envIntOrDefault("STEWARD_INTERVAL", 60)

	if adminKey == "" {
		slog.Error("MOTELSIM_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second
	slog.Info("motel steward starting", "api_url", apiURL, "interval", interval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observer := steward.NewObserver(apiURL)
	actor := steward.NewActor(apiURL, adminKey)

	slog.Info("waiting for motelsim API...")
	if err := waitForAPI(ctx, observer); err != nil {
		slog.Error("motelsim API unavailable", "error", err)
		os.Exit(1)
	}

	prevDiscarded := -1
	runCycle(ctx, observer, actor, &prevDiscarded)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCycle(ctx, observer, actor, &prevDiscarded)
		case <-ctx.Done():
			slog.Info("received signal, shutting down")
			fmt.Println("Steward stopped.")
			return
		}
	}
}

// runCycle executes one observe, triage, decide, act cycle. prevDiscarded
// carries the discard count between cycles; -1 means no baseline yet.
func runCycle(ctx context.Context, observer *steward.Observer, actor *steward.Actor, prevDiscarded *int) {
	snap, err := observer.Observe(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}
	if *prevDiscarded < 0 {
		*prevDiscarded = snap.Status.Discarded
	}

	h := steward.Triage(snap, *prevDiscarded)
	*prevDiscarded = snap.Status.Discarded
	slog.Info("observation complete",
		"time", snap.Status.Time,
		"level", h.Level,
		"active", snap.Status.Active,
		"occupied", fmt.Sprintf("%d/%d", snap.Status.Occupied, snap.Status.Rooms),
		"queue", snap.Status.Queue,
	)

	d := steward.Decide(snap, h)
	if d.Action == steward.ActionNone {
		slog.Info("no intervention", "rationale", d.Rationale)
		return
	}

	result, err := actor.Act(ctx, d)
	if err != nil {
		slog.Error("intervention failed", "action", d.Action, "error", err)
		return
	}
	slog.Info("intervention executed", "action", d.Action, "rationale", d.Rationale, "result", result)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Gives up after 5 minutes.
func waitForAPI(ctx context.Context, observer *steward.Observer) error {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		if observer.Ready(ctx) {
			slog.Info("motelsim API is ready")
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("not ready within 5 minutes")
		}
		slog.Info("motelsim not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
