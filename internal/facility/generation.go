// Facility generation using simplex noise.
// Lays out the building and its row of rooms, then derives the grounds
// and room furnishings from independent noise layers.
package facility

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

// RoomHeight is the floor-to-ceiling height of every guest room.
const RoomHeight = 4.0

// GenConfig holds facility generation parameters.
type GenConfig struct {
	Width          int     `yaml:"width"`           // Grid cells along X
	Depth          int     `yaml:"depth"`           // Grid cells along Z
	CellSize       float64 `yaml:"cell_size"`       // World units per cell
	Seed           int64   `yaml:"seed"`            // 0 = random
	RoomCount      int     `yaml:"room_count"`      // Rooms along the back wall
	RoomDepth      int     `yaml:"room_depth"`      // Cells
	ForecourtDepth int     `yaml:"forecourt_depth"` // Cells from the entrance to the spawn point
	GroundsLevel   float64 `yaml:"grounds_level"`   // Noise threshold below which grounds are blocked
}

// DefaultGenConfig returns a six-room motel on a 48x36 lot.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:          48,
		Depth:          36,
		CellSize:       1,
		Seed:           0,
		RoomCount:      6,
		RoomDepth:      6,
		ForecourtDepth: 12,
		GroundsLevel:   0.3,
	}
}

// Validate checks that the building and forecourt fit on the lot.
func (cfg GenConfig) Validate() error {
	switch {
	case cfg.Width < 16 || cfg.Depth < 16:
		return fmt.Errorf("lot %dx%d smaller than 16x16", cfg.Width, cfg.Depth)
	case cfg.CellSize <= 0:
		return fmt.Errorf("cell size %v must be positive", cfg.CellSize)
	case cfg.RoomCount < 1:
		return fmt.Errorf("room count %d must be at least 1", cfg.RoomCount)
	case cfg.RoomDepth < 2:
		return fmt.Errorf("room depth %d must be at least 2", cfg.RoomDepth)
	case cfg.ForecourtDepth < 1 || cfg.ForecourtDepth >= cfg.Depth/2:
		return fmt.Errorf("forecourt depth %d out of range", cfg.ForecourtDepth)
	}
	if (cfg.Width-12)/cfg.RoomCount < 3 {
		return fmt.Errorf("%d rooms do not fit in a %d-cell building", cfg.RoomCount, cfg.Width-12)
	}
	return nil
}

// furnitureKind is a catalogue entry: base price plus a noise-scaled spread.
type furnitureKind struct {
	name   string
	base   int64
	spread float64
}

var furnitureCatalogue = []furnitureKind{
	{"wardrobe", 100, 80},
	{"desk", 60, 50},
	{"chair", 20, 20},
	{"lamp", 15, 15},
	{"minibar", 80, 60},
	{"television", 120, 90},
}

var bed = furnitureKind{"bed", 200, 150}

// Generate creates a complete floor with building, grounds and rooms.
func Generate(cfg GenConfig) (*Floor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("facility config: %w", err)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Independent layers for the grounds and the room prices.
	groundNoise := opensimplex.NewNormalized(seed)
	priceNoise := opensimplex.NewNormalized(seed + 1)
	rng := rand.New(rand.NewSource(seed + 100))

	f := NewFloor(cfg.Width, cfg.Depth, cfg.CellSize)
	cs := cfg.CellSize

	// Building occupies the back half of the lot with a six-cell margin.
	bx0, bx1 := 6, cfg.Width-6
	bz0, bz1 := cfg.Depth/2, cfg.Depth-4
	f.Building = geom.Bounds{
		Min: geom.Vec3{X: float64(bx0) * cs, Z: float64(bz0) * cs},
		Max: geom.Vec3{X: float64(bx1) * cs, Y: RoomHeight, Z: float64(bz1) * cs},
	}

	for z := 0; z < cfg.Depth; z++ {
		for x := 0; x < cfg.Width; x++ {
			c := Cell{X: x, Z: z}
			if x >= bx0 && x < bx1 && z >= bz0 && z < bz1 {
				f.Set(c, TileBuilding)
				continue
			}
			p := c.centre(cs)
			if octaveNoise(groundNoise, p.X, p.Z, 3, 0.08, 0.5) >= cfg.GroundsLevel {
				f.Set(c, TileGrounds)
			}
		}
	}

	// Entrance, counter and spawn all sit on the building's centre line.
	mid := float64(bx0+bx1) / 2 * cs
	f.Counter = geom.Vec3{X: mid, Z: float64(bz0+3) * cs}
	f.QueueDir = geom.Vec3{Z: -1}
	spawnZ := bz0 - cfg.ForecourtDepth
	f.Spawn = geom.Vec3{X: mid, Z: (float64(spawnZ) + 0.5) * cs}
	carveForecourt(f, int(mid/cs), spawnZ-1, bz0)

	// Rooms share the back wall, one-cell partitions between them.
	roomW := (bx1 - bx0) / cfg.RoomCount
	rz0 := bz1 - cfg.RoomDepth
	for i := 0; i < cfg.RoomCount; i++ {
		rx0 := bx0 + i*roomW
		rx1 := rx0 + roomW - 1
		for z := rz0; z < bz1; z++ {
			for x := rx0; x < rx1; x++ {
				f.Set(Cell{X: x, Z: z}, TileRoom)
			}
		}

		b := geom.Bounds{
			Min: geom.Vec3{X: float64(rx0) * cs, Z: float64(rz0) * cs},
			Max: geom.Vec3{X: float64(rx1) * cs, Z: float64(bz1) * cs},
		}.WithHeight(RoomHeight)
		centre := b.FloorCenter()
		level := priceNoise.Eval2(centre.X*0.1, centre.Z*0.1)
		f.Rooms = append(f.Rooms, rooms.New(fmt.Sprintf("Room %d", i+1), b, furnish(level, rng)))
	}

	return f, nil
}

// carveForecourt clears a three-cell-wide path from the spawn row up to
// the entrance so the queue line and the way in are always walkable.
func carveForecourt(f *Floor, midX, fromZ, toZ int) {
	for z := fromZ; z < toZ; z++ {
		for x := midX - 1; x <= midX+1; x++ {
			f.Set(Cell{X: x, Z: z}, TileForecourt)
		}
	}
}

// furnish picks a bed plus one to three catalogue pieces, priced by the
// room's noise level.
func furnish(level float64, rng *rand.Rand) []rooms.Furniture {
	items := []rooms.Furniture{price(bed, level)}
	picks := rng.Perm(len(furnitureCatalogue))[:1+rng.Intn(3)]
	for _, i := range picks {
		items = append(items, price(furnitureCatalogue[i], level))
	}
	return items
}

func price(k furnitureKind, level float64) rooms.Furniture {
	return rooms.Furniture{Name: k.name, Price: k.base + int64(math.Round(level*k.spread))}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
