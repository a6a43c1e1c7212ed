// Package rooms holds the exclusive-use room resources of the facility and
// the lock-guarded registry that arbitrates which agent holds which room.
package rooms

import (
	"fmt"
	"math"

	"github.com/talgya/motel-sim/internal/geom"
)

// RoomID is a stable identifier derived from a room's floor position.
type RoomID string

// None marks an unassigned room reference.
const None RoomID = ""

// Furniture is one priced item inside a room.
type Furniture struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Room is a named exclusive-use resource.
type Room struct {
	ID        RoomID      `json:"id"`
	Name      string      `json:"name"`
	Bounds    geom.Bounds `json:"bounds"`
	Furniture []Furniture `json:"furniture,omitempty"`
	Price     int64       `json:"price"` // Sum of furniture prices

	// Occupancy is mutated only under the registry lock.
	Occupied bool   `json:"occupied"`
	Holder   string `json:"holder,omitempty"`
}

// IDFor derives a room id from its position, rounded to whole floor units.
// Distinct locations at least one unit apart get distinct ids.
func IDFor(pos geom.Vec3) RoomID {
	return RoomID(fmt.Sprintf("Room_%.0f_%.0f", pos.X, pos.Z))
}

// New builds a free room at the given bounds and totals its furniture.
func New(name string, bounds geom.Bounds, furniture []Furniture) Room {
	r := Room{
		ID:        IDFor(bounds.FloorCenter()),
		Name:      name,
		Bounds:    bounds,
		Furniture: furniture,
	}
	for _, f := range furniture {
		r.Price += f.Price
	}
	return r
}

// Anchor is the point agents walk to when heading for the room.
func (r Room) Anchor() geom.Vec3 {
	return r.Bounds.FloorCenter()
}

// Radius is the wander radius inside the room: 30% of the diagonal, or 2
// for degenerate bounds.
func (r Room) Radius() float64 {
	d := r.Bounds.Size().Len()
	if d <= 0 || math.IsNaN(d) {
		return 2
	}
	return d * 0.3
}
