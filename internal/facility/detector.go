package facility

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/talgya/motel-sim/internal/rooms"
)

// Detector discovers the rooms on a floor and publishes each batch to its
// subscribers.
type Detector struct {
	floor *Floor

	mu    sync.Mutex
	subs  map[int]chan []rooms.Room
	next  int
	scans int
}

// NewDetector creates a detector over f.
func NewDetector(f *Floor) *Detector {
	return &Detector{floor: f, subs: make(map[int]chan []rooms.Room)}
}

// Scan returns a fresh batch of free rooms and publishes it. Subscribers
// that still hold an unread batch skip this one.
func (d *Detector) Scan() []rooms.Room {
	batch := make([]rooms.Room, len(d.floor.Rooms))
	for i, r := range d.floor.Rooms {
		r.Furniture = slices.Clone(r.Furniture)
		r.Occupied, r.Holder = false, ""
		batch[i] = r
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.scans++
	for id, ch := range d.subs {
		select {
		case ch <- batch:
		default:
			slog.Debug("room batch dropped, subscriber busy", "subscriber", id)
		}
	}
	return batch
}

// Subscribe returns a channel of room batches and a cancel func.
func (d *Detector) Subscribe() (<-chan []rooms.Room, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.next
	d.next++
	ch := make(chan []rooms.Room, 1)
	d.subs[id] = ch

	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
}

// Scans counts completed scans.
func (d *Detector) Scans() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scans
}
