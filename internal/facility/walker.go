package facility

import (
	"log/slog"
	"math"

	"github.com/talgya/motel-sim/internal/entropy"
	"github.com/talgya/motel-sim/internal/geom"
)

// sampleAttempts bounds SampleWalkablePoint.
const sampleAttempts = 8

// Walker moves one agent over a Floor. A new destination is planned on
// the following Step, so PathPending is true for exactly one tick.
// Walkers are stepped by the simulation loop and are not safe for
// concurrent use.
type Walker struct {
	floor *Floor
	speed float64 // World units per tick
	rng   entropy.Source

	pos     geom.Vec3
	dest    geom.Vec3
	route   []geom.Vec3
	pending bool
}

// NewWalker creates a walker standing at the floor's spawn point.
func NewWalker(f *Floor, speed float64, rng entropy.Source) *Walker {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	return &Walker{floor: f, speed: speed, rng: rng, pos: f.Spawn, dest: f.Spawn}
}

func (w *Walker) SetDestination(p geom.Vec3) {
	w.dest = p
	w.route = nil
	w.pending = true
}

func (w *Walker) PathPending() bool { return w.pending }

func (w *Walker) RemainingDistance() float64 { return geom.FlatDist(w.pos, w.dest) }

func (w *Walker) OnNavigableSurface() bool { return w.floor.Walkable(w.pos) }

func (w *Walker) Position() geom.Vec3 { return w.pos }

// Warp places the walker at p and clears its route.
func (w *Walker) Warp(p geom.Vec3) {
	w.pos, w.dest = p, p
	w.route = nil
	w.pending = false
}

// Displace moves the walker without planning or validation.
func (w *Walker) Displace(p geom.Vec3) {
	w.pos = p
	w.route = nil
}

// SampleWalkablePoint draws a uniform point within radius of center whose
// straight segment from center is walkable.
func (w *Walker) SampleWalkablePoint(center geom.Vec3, radius float64) (geom.Vec3, bool) {
	for i := 0; i < sampleAttempts; i++ {
		angle := w.rng.Float64() * 2 * math.Pi
		r := radius * math.Sqrt(w.rng.Float64())
		p := geom.Vec3{X: center.X + r*math.Cos(angle), Y: center.Y, Z: center.Z + r*math.Sin(angle)}
		if w.floor.Walkable(p) && w.floor.SegmentWalkable(center, p) {
			return p, true
		}
	}
	return geom.Vec3{}, false
}

// Step plans a pending destination or advances along the route.
func (w *Walker) Step() {
	if w.pending {
		w.pending = false
		w.route = w.plan(w.pos, w.dest)
		return
	}

	budget := w.speed
	for budget > 0 && len(w.route) > 0 {
		next := w.route[0]
		d := geom.FlatDist(w.pos, next)
		if d <= budget {
			w.pos = next
			w.route = w.route[1:]
			budget -= d
			continue
		}
		w.pos = w.pos.Add(next.Sub(w.pos).Scale(budget / d))
		budget = 0
	}
}

// plan returns the waypoints from a to b: the straight segment when it is
// clear, otherwise a breadth-first route over walkable cells. When no
// route exists the walker heads straight for b.
func (w *Walker) plan(a, b geom.Vec3) []geom.Vec3 {
	if w.floor.SegmentWalkable(a, b) {
		return []geom.Vec3{b}
	}

	start, ok1 := w.floor.CellAt(a)
	goal, ok2 := w.floor.CellAt(b)
	if !ok1 || !ok2 {
		return []geom.Vec3{b}
	}

	prev := map[Cell]Cell{start: start}
	frontier := []Cell{start}
	for len(frontier) > 0 && !hasCell(prev, goal) {
		c := frontier[0]
		frontier = frontier[1:]
		for _, n := range c.Neighbors() {
			if hasCell(prev, n) || !w.floor.Tile(n).Walkable() {
				continue
			}
			prev[n] = c
			frontier = append(frontier, n)
		}
	}
	if !hasCell(prev, goal) {
		slog.Debug("no route, walking straight", "from", a, "to", b)
		return []geom.Vec3{b}
	}

	var cells []Cell
	for c := goal; c != start; c = prev[c] {
		cells = append(cells, c)
	}
	route := make([]geom.Vec3, 0, len(cells)+1)
	for i := len(cells) - 1; i > 0; i-- {
		route = append(route, cells[i].centre(w.floor.CellSize))
	}
	return append(route, b)
}

func hasCell(m map[Cell]Cell, c Cell) bool {
	_, ok := m[c]
	return ok
}
