package engine

import (
	"fmt"
	"sync"
)

const (
	MinutesPerHour = 60
	HoursPerDay    = 24
)

// Clock is the facility's time of day. Minute subscribers are called in
// subscription order after the clock lock is released.
type Clock struct {
	mu     sync.Mutex
	day    int
	hour   int
	minute int

	subs   []minuteSub
	nextID int
}

type minuteSub struct {
	id int
	fn func(hour, minute int)
}

// NewClock creates a clock at day 1, hour:minute.
func NewClock(hour, minute int) *Clock {
	c := &Clock{day: 1}
	c.Set(hour, minute)
	return c
}

func (c *Clock) Hour() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hour
}

func (c *Clock) Minute() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minute
}

// Day is 1-based.
func (c *Clock) Day() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day
}

// Now returns day, hour and minute in one read.
func (c *Clock) Now() (day, hour, minute int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.day, c.hour, c.minute
}

// Set moves the clock without notifying subscribers. Out-of-range values
// wrap.
func (c *Clock) Set(hour, minute int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hour = ((hour % HoursPerDay) + HoursPerDay) % HoursPerDay
	c.minute = ((minute % MinutesPerHour) + MinutesPerHour) % MinutesPerHour
}

// SetDay restores the day counter.
func (c *Clock) SetDay(day int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if day < 1 {
		day = 1
	}
	c.day = day
}

// Advance moves one minute forward, wrapping at midnight, and notifies
// subscribers with the new time.
func (c *Clock) Advance() {
	c.mu.Lock()
	c.minute++
	if c.minute == MinutesPerHour {
		c.minute = 0
		c.hour++
		if c.hour == HoursPerDay {
			c.hour = 0
			c.day++
		}
	}
	hour, minute := c.hour, c.minute
	subs := make([]minuteSub, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(hour, minute)
	}
}

// OnMinute subscribes fn to every Advance. The returned func cancels.
func (c *Clock) OnMinute(fn func(hour, minute int)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs = append(c.subs, minuteSub{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Clock) String() string {
	day, hour, minute := c.Now()
	return SimTime(day, hour, minute)
}

// SimTime returns a human-readable simulation time.
func SimTime(day, hour, minute int) string {
	return fmt.Sprintf("Day %d, %02d:%02d", day, hour, minute)
}
