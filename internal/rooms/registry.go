package rooms

import (
	"log/slog"
	"sync"

	"github.com/talgya/motel-sim/internal/entropy"
)

// Registry is the shared set of rooms and their occupancy. Every read and
// every read-modify-write happens under one mutex; callers never hold it
// across a suspension because no method blocks or calls out except the
// bind/unbind hooks, which must be short and must not call back in.
type Registry struct {
	mu    sync.Mutex
	rooms []*Room // Discovery order
	byID  map[RoomID]*Room
	rng   entropy.Source
}

// NewRegistry creates an empty registry drawing random picks from rng.
func NewRegistry(rng entropy.Source) *Registry {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	return &Registry{
		byID: make(map[RoomID]*Room),
		rng:  rng,
	}
}

// Upsert merges discovered rooms by id. Known rooms take the rediscovered
// geometry and contents but keep their live occupancy; unknown ids are
// inserted free. Duplicates inside one batch resolve to the first entry.
// Returns the number of rooms inserted.
func (r *Registry) Upsert(discovered []Room) int {
	if len(discovered) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[RoomID]bool, len(discovered))
	added := 0
	for _, d := range discovered {
		if d.ID == None || seen[d.ID] {
			continue
		}
		seen[d.ID] = true

		if existing, ok := r.byID[d.ID]; ok {
			existing.Name = d.Name
			existing.Bounds = d.Bounds
			existing.Furniture = d.Furniture
			existing.Price = d.Price
			continue
		}

		room := d
		room.Occupied = false
		room.Holder = ""
		r.rooms = append(r.rooms, &room)
		r.byID[room.ID] = &room
		added++
	}

	if added > 0 {
		slog.Info("room registry updated", "added", added, "total", len(r.rooms))
	}
	return added
}

// Available returns a point-in-time list of free rooms.
func (r *Registry) Available() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableLocked()
}

func (r *Registry) availableLocked() []Room {
	var free []Room
	for _, room := range r.rooms {
		if !room.Occupied {
			free = append(free, *room)
		}
	}
	return free
}

// Claim picks a free room uniformly at random, marks it occupied by holder
// and returns it. bind, when non-nil, runs under the same lock acquisition
// so the holder's own reference is set atomically with the flag.
// Returns false when no room is free.
func (r *Registry) Claim(holder string, bind func(Room)) (Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := r.availableLocked()
	if len(free) == 0 {
		slog.Debug("no room available", "agent", holder)
		return Room{}, false
	}

	picked := r.byID[free[r.rng.Intn(len(free))].ID]
	picked.Occupied = true
	picked.Holder = holder
	if bind != nil {
		bind(*picked)
	}

	slog.Debug("room claimed", "agent", holder, "room", picked.ID)
	return *picked, true
}

// Release frees a room held by holder. Releasing a free or unknown room,
// or one held by someone else, is a no-op. unbind, when non-nil, always
// runs under the lock so the caller can clear its reference in the same
// critical section. Reports whether the room was freed.
func (r *Registry) Release(id RoomID, holder string, unbind func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if unbind != nil {
		defer unbind()
	}

	room, ok := r.byID[id]
	if !ok || !room.Occupied {
		return false
	}
	if room.Holder != holder {
		slog.Warn("release by non-holder ignored", "room", id, "holder", room.Holder, "caller", holder)
		return false
	}
	room.Occupied = false
	slog.Debug("room released", "agent", holder, "room", id)
	room.Holder = ""
	return true
}

// Get returns a copy of the room with the given id.
func (r *Registry) Get(id RoomID) (Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.byID[id]
	if !ok {
		return Room{}, false
	}
	return *room, true
}

// Number returns the 1-based display number of a room, or 0 if unknown.
func (r *Registry) Number(id RoomID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, room := range r.rooms {
		if room.ID == id {
			return i + 1
		}
	}
	return 0
}

// Snapshot returns copies of all rooms in discovery order.
func (r *Registry) Snapshot() []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Room, len(r.rooms))
	for i, room := range r.rooms {
		out[i] = *room
	}
	return out
}

// Counts returns the total and occupied room counts.
func (r *Registry) Counts() (total, occupied int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		if room.Occupied {
			occupied++
		}
	}
	return len(r.rooms), occupied
}
