// Package facility provides the floor plan the guests move over: a cell
// grid of grounds and building, the rooms laid out inside it, a grid
// navigator per agent and the room detector.
package facility

import "github.com/talgya/motel-sim/internal/geom"

// Cell is a square of the floor grid.
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Tile classifies a cell.
type Tile uint8

const (
	TileBlocked   Tile = iota // Pond or hedge; not walkable
	TileGrounds               // Open grounds around the building
	TileForecourt             // Carved path from the spawn point to the entrance
	TileBuilding              // Lobby and corridors
	TileRoom                  // Inside a guest room
)

func (t Tile) String() string {
	switch t {
	case TileBlocked:
		return "Blocked"
	case TileGrounds:
		return "Grounds"
	case TileForecourt:
		return "Forecourt"
	case TileBuilding:
		return "Building"
	case TileRoom:
		return "Room"
	default:
		return "Unknown"
	}
}

// Walkable reports whether agents may stand on the tile.
func (t Tile) Walkable() bool {
	return t != TileBlocked
}

// cellNeighborDirections are the four edge-adjacent offsets.
var cellNeighborDirections = [4]Cell{
	{X: 1, Z: 0},
	{X: 0, Z: 1},
	{X: -1, Z: 0},
	{X: 0, Z: -1},
}

// Neighbors returns the four edge-adjacent cells.
func (c Cell) Neighbors() [4]Cell {
	var result [4]Cell
	for i, dir := range cellNeighborDirections {
		result[i] = Cell{X: c.X + dir.X, Z: c.Z + dir.Z}
	}
	return result
}

// Distance returns the Manhattan distance between two cells.
func Distance(a, b Cell) int {
	dx, dz := a.X-b.X, a.Z-b.Z
	if dx < 0 {
		dx = -dx
	}
	if dz < 0 {
		dz = -dz
	}
	return dx + dz
}

// centre returns the floor-level midpoint of c.
func (c Cell) centre(size float64) geom.Vec3 {
	return geom.Vec3{X: (float64(c.X) + 0.5) * size, Z: (float64(c.Z) + 0.5) * size}
}
