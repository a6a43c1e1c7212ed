package facility

import (
	"fmt"
	"math"

	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

// Floor holds the generated facility.
type Floor struct {
	Width    int     `json:"width"` // Cells along X
	Depth    int     `json:"depth"` // Cells along Z
	CellSize float64 `json:"cell_size"`

	Building geom.Bounds  `json:"building"`
	Rooms    []rooms.Room `json:"rooms"`

	Spawn    geom.Vec3 `json:"spawn"`
	Counter  geom.Vec3 `json:"counter"`
	QueueDir geom.Vec3 `json:"queue_dir"` // Direction the counter queue extends

	tiles []Tile
}

// NewFloor creates a floor with every cell blocked.
func NewFloor(width, depth int, cellSize float64) *Floor {
	return &Floor{
		Width:    width,
		Depth:    depth,
		CellSize: cellSize,
		tiles:    make([]Tile, width*depth),
	}
}

// InBounds returns true if the cell lies on the grid.
func (f *Floor) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < f.Width && c.Z >= 0 && c.Z < f.Depth
}

// Tile returns the tile at c; off-grid cells are blocked.
func (f *Floor) Tile(c Cell) Tile {
	if !f.InBounds(c) {
		return TileBlocked
	}
	return f.tiles[c.Z*f.Width+c.X]
}

// Set assigns a tile.
func (f *Floor) Set(c Cell, t Tile) {
	if f.InBounds(c) {
		f.tiles[c.Z*f.Width+c.X] = t
	}
}

// CellAt returns the cell containing p.
func (f *Floor) CellAt(p geom.Vec3) (Cell, bool) {
	c := Cell{X: int(math.Floor(p.X / f.CellSize)), Z: int(math.Floor(p.Z / f.CellSize))}
	return c, f.InBounds(c)
}

// Walkable reports whether p is on a walkable cell.
func (f *Floor) Walkable(p geom.Vec3) bool {
	c, ok := f.CellAt(p)
	return ok && f.Tile(c).Walkable()
}

// SegmentWalkable samples the straight segment a→b at half-cell spacing.
func (f *Floor) SegmentWalkable(a, b geom.Vec3) bool {
	d := geom.FlatDist(a, b)
	steps := int(math.Ceil(d / (f.CellSize / 2)))
	for i := 0; i <= steps; i++ {
		t := 1.0
		if steps > 0 {
			t = float64(i) / float64(steps)
		}
		if !f.Walkable(a.Add(b.Sub(a).Scale(t))) {
			return false
		}
	}
	return true
}

// TileCounts returns a summary of the tile distribution.
func (f *Floor) TileCounts() map[Tile]int {
	counts := make(map[Tile]int)
	for _, t := range f.tiles {
		counts[t]++
	}
	return counts
}

func (f *Floor) String() string {
	return fmt.Sprintf("Floor(%dx%d, rooms=%d)", f.Width, f.Depth, len(f.Rooms))
}
