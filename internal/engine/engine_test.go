package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClockAdvanceWraps(t *testing.T) {
	c := NewClock(23, 59)
	require.Equal(t, "Day 1, 23:59", c.String())

	c.Advance()
	day, hour, minute := c.Now()
	require.Equal(t, 2, day)
	require.Equal(t, 0, hour)
	require.Equal(t, 0, minute)

	c.Set(25, -1)
	require.Equal(t, 1, c.Hour())
	require.Equal(t, 59, c.Minute())
}

func TestClockSubscribersInOrder(t *testing.T) {
	c := NewClock(8, 58)
	var calls []string
	c.OnMinute(func(h, m int) { calls = append(calls, "a:"+SimTime(0, h, m)) })
	cancel := c.OnMinute(func(h, m int) { calls = append(calls, "b:"+SimTime(0, h, m)) })

	c.Advance()
	cancel()
	cancel()
	c.Advance()

	require.Equal(t, []string{
		"a:Day 0, 08:59",
		"b:Day 0, 08:59",
		"a:Day 0, 09:00",
	}, calls)
}

func TestClockSubscriberMayReadClock(t *testing.T) {
	c := NewClock(10, 0)
	var seen int
	c.OnMinute(func(int, int) { seen = c.Minute() })
	c.Advance()
	require.Equal(t, 1, seen)
}

func TestEngineStepOrdering(t *testing.T) {
	e := NewEngine()
	e.TicksPerMinute = 2

	var calls []string
	e.OnMinute = func(tick uint64) { calls = append(calls, "minute") }
	e.OnTick = func(tick uint64) { calls = append(calls, "tick") }

	e.Step()
	e.Step()
	e.Step()

	require.Equal(t, uint64(3), e.Tick)
	require.Equal(t, []string{"tick", "minute", "tick", "tick"}, calls)
}

func TestEngineRunStops(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	e.SetSpeed(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	require.Eventually(t, e.Running, time.Second, time.Millisecond)
	e.Stop()
	e.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	require.False(t, e.Running())
	require.Positive(t, e.Tick)
}

func TestEngineRunHonoursContext(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e.Run(ctx)
	require.Zero(t, e.Tick)
}
