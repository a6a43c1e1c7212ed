// Package counter implements the front desk: a bounded FIFO queue in front
// of a service counter that serves one customer at a time for a fixed
// number of ticks.
package counter

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/motel-sim/internal/geom"
)

// Customer is anything that can stand in the queue.
type Customer interface {
	CustomerID() string
	SetQueueDestination(p geom.Vec3)
	OnServiceComplete()
}

// Ticket is one customer's standing in the queue.
type Ticket struct {
	ID       uuid.UUID `json:"id"`
	Customer string    `json:"customer"`
	Joined   uint64    `json:"joined_tick"`
	Slot     int       `json:"slot"`
}

// Config sizes the desk and lays out its queue line.
type Config struct {
	Capacity     int       `yaml:"capacity"`
	ServiceTicks int       `yaml:"service_ticks"`
	SlotSpacing  float64   `yaml:"slot_spacing"`
	Position     geom.Vec3 `yaml:"-"` // Counter front
	Direction    geom.Vec3 `yaml:"-"` // Unit vector the line extends along
}

// DefaultConfig returns a ten-place desk with five-tick sessions.
func DefaultConfig() Config {
	return Config{
		Capacity:     10,
		ServiceTicks: 5,
		SlotSpacing:  1,
		Direction:    geom.Vec3{Z: -1},
	}
}

type entry struct {
	ticket Ticket
	c      Customer
}

type move struct {
	c   Customer
	pos geom.Vec3
}

// Desk is the shared service counter. Customer callbacks are always made
// after the desk lock is released.
type Desk struct {
	mu        sync.Mutex
	cfg       Config
	queue     []*entry
	serving   *entry
	remaining int
	now       uint64

	served    uint64
	rejected  uint64
	cancelled uint64
}

// NewDesk creates a desk.
func NewDesk(cfg Config) *Desk {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.ServiceTicks < 1 {
		cfg.ServiceTicks = 1
	}
	return &Desk{cfg: cfg}
}

// Position is the counter front.
func (d *Desk) Position() geom.Vec3 {
	return d.cfg.Position
}

// SlotPosition returns where the customer at queue index i stands.
func (d *Desk) SlotPosition(i int) geom.Vec3 {
	return d.cfg.Position.Add(d.cfg.Direction.Scale(d.cfg.SlotSpacing * float64(i+1)))
}

// TryJoinQueue admits c at the back of the queue. Returns false when the
// queue is full. Joining twice keeps the original ticket.
func (d *Desk) TryJoinQueue(c Customer) bool {
	d.mu.Lock()
	if d.indexLocked(c) >= 0 {
		d.mu.Unlock()
		return true
	}
	if len(d.queue) >= d.cfg.Capacity {
		d.rejected++
		d.mu.Unlock()
		slog.Debug("queue full", "customer", c.CustomerID(), "capacity", d.cfg.Capacity)
		return false
	}

	slot := len(d.queue)
	d.queue = append(d.queue, &entry{
		ticket: Ticket{ID: uuid.New(), Customer: c.CustomerID(), Joined: d.now, Slot: slot},
		c:      c,
	})
	pos := d.SlotPosition(slot)
	d.mu.Unlock()

	slog.Debug("joined queue", "customer", c.CustomerID(), "slot", slot)
	c.SetQueueDestination(pos)
	return true
}

// CanReceiveService reports whether c is at the head and the desk is idle.
func (d *Desk) CanReceiveService(c Customer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serving == nil && len(d.queue) > 0 && d.queue[0].c == c
}

// StartService begins a fixed-length session for the head customer.
func (d *Desk) StartService(c Customer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.serving != nil || len(d.queue) == 0 || d.queue[0].c != c {
		slog.Warn("service start refused", "customer", c.CustomerID())
		return
	}
	d.serving = d.queue[0]
	d.remaining = d.cfg.ServiceTicks
	slog.Debug("service started", "customer", c.CustomerID(), "ticks", d.remaining)
}

// Tick advances the running session and notifies its customer on completion.
func (d *Desk) Tick() {
	d.mu.Lock()
	d.now++
	var done Customer
	if d.serving != nil {
		d.remaining--
		if d.remaining <= 0 {
			done = d.serving.c
			d.serving = nil
			d.served++
		}
	}
	d.mu.Unlock()

	if done != nil {
		slog.Debug("service complete", "customer", done.CustomerID())
		done.OnServiceComplete()
	}
}

// LeaveQueue removes c unconditionally, cancelling its session if it was
// being served, and moves everyone behind it up one slot. Safe to call
// when c is not queued.
func (d *Desk) LeaveQueue(c Customer) {
	d.mu.Lock()
	i := d.indexLocked(c)
	if i < 0 {
		d.mu.Unlock()
		return
	}
	if d.serving != nil && d.serving.c == c {
		d.serving = nil
		d.remaining = 0
		d.cancelled++
	}
	d.queue = append(d.queue[:i], d.queue[i+1:]...)

	var moves []move
	for j := i; j < len(d.queue); j++ {
		d.queue[j].ticket.Slot = j
		moves = append(moves, move{c: d.queue[j].c, pos: d.SlotPosition(j)})
	}
	d.mu.Unlock()

	for _, m := range moves {
		m.c.SetQueueDestination(m.pos)
	}
}

func (d *Desk) indexLocked(c Customer) int {
	for i, e := range d.queue {
		if e.c == c {
			return i
		}
	}
	return -1
}

// Len returns the queue length.
func (d *Desk) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Snapshot is a point-in-time view of the desk.
type Snapshot struct {
	Capacity  int      `json:"capacity"`
	Tickets   []Ticket `json:"tickets"`
	Serving   string   `json:"serving,omitempty"`
	Remaining int      `json:"remaining_ticks"`
	Served    uint64   `json:"served"`
	Rejected  uint64   `json:"rejected"`
	Cancelled uint64   `json:"cancelled"`
}

// Snapshot returns a copy of the desk state.
func (d *Desk) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		Capacity:  d.cfg.Capacity,
		Tickets:   make([]Ticket, len(d.queue)),
		Remaining: d.remaining,
		Served:    d.served,
		Rejected:  d.rejected,
		Cancelled: d.cancelled,
	}
	for i, e := range d.queue {
		s.Tickets[i] = e.ticket
	}
	if d.serving != nil {
		s.Serving = d.serving.ticket.Customer
	}
	return s
}
