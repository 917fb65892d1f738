package chunk

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Generator fills a fresh chunk's terrain. Output must depend only on
// (seed, coord) so regenerating an unpersisted chunk is idempotent.
type Generator interface {
	Generate(seed int64, c Coord, tiles []Tile) error
}

// NoiseGenerator is the built-in generator: two octaves of hashed value
// noise for terrain and at most one resource deposit per chunk.
type NoiseGenerator struct {
	// Scale is the tile span of one low-octave noise cell.
	Scale int32
	// DepositChance is the chance in 1/256 that a chunk gets a deposit.
	DepositChance uint8
}

func NewNoiseGenerator() *NoiseGenerator {
	return &NoiseGenerator{Scale: 24, DepositChance: 96}
}

// hash3 mixes the seed with two coordinates and a salt.
func hash3(seed int64, x, y int32, salt uint8) uint64 {
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(seed))
	binary.LittleEndian.PutUint32(buf[8:], uint32(x))
	binary.LittleEndian.PutUint32(buf[12:], uint32(y))
	buf[16] = salt
	return xxhash.Sum64(buf[:])
}

// lattice returns a value in [0,1) for a lattice point.
func lattice(seed int64, x, y int32, salt uint8) float64 {
	return float64(hash3(seed, x, y, salt)>>11) / float64(1<<53)
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func lerp(a, b, t float64) float64 { return a + (b-a)*t }

func latticeFloor(v, scale int32) int32 {
	if v < 0 {
		return (v - scale + 1) / scale
	}
	return v / scale
}

// valueNoise samples bilinear-interpolated lattice noise at tile (x, y).
func valueNoise(seed int64, x, y, scale int32, salt uint8) float64 {
	cx, cy := latticeFloor(x, scale), latticeFloor(y, scale)
	fx := smooth(float64(x-cx*scale) / float64(scale))
	fy := smooth(float64(y-cy*scale) / float64(scale))
	v00 := lattice(seed, cx, cy, salt)
	v10 := lattice(seed, cx+1, cy, salt)
	v01 := lattice(seed, cx, cy+1, salt)
	v11 := lattice(seed, cx+1, cy+1, salt)
	return lerp(lerp(v00, v10, fx), lerp(v01, v11, fx), fy)
}

func (g *NoiseGenerator) height(seed int64, x, y int32) float64 {
	scale := g.Scale
	if scale < 2 {
		scale = 2
	}
	return 0.7*valueNoise(seed, x, y, scale, 1) + 0.3*valueNoise(seed, x, y, max(scale/4, 2), 2)
}

func terrainFor(h float64) uint8 {
	switch {
	case h < 0.28:
		return TerrainWater
	case h < 0.34:
		return TerrainSand
	case h < 0.62:
		return TerrainGrass
	case h < 0.78:
		return TerrainDirt
	default:
		return TerrainRock
	}
}

func (g *NoiseGenerator) Generate(seed int64, c Coord, tiles []Tile) error {
	origin := c.Origin()
	for ly := int32(0); ly < Size; ly++ {
		for lx := int32(0); lx < Size; lx++ {
			h := g.height(seed, origin.X+lx, origin.Y+ly)
			tiles[ly*Size+lx] = Tile{Terrain: terrainFor(h)}
		}
	}
	g.placeDeposit(seed, c, tiles)
	return nil
}

// placeDeposit drops a round deposit whose centre, radius and kind are
// drawn from the chunk hash. Water tiles never carry solid resources.
func (g *NoiseGenerator) placeDeposit(seed int64, c Coord, tiles []Tile) {
	h := hash3(seed, c.X, c.Y, 7)
	if uint8(h) >= g.DepositChance {
		return
	}
	kind := ResourceIron + uint8((h>>8)%5)
	cx := int32((h >> 16) % Size)
	cy := int32((h >> 24) % Size)
	radius := int32(3 + (h>>32)%6)
	richness := uint16(200 + (h>>40)%800)

	for ly := int32(0); ly < Size; ly++ {
		for lx := int32(0); lx < Size; lx++ {
			dx, dy := lx-cx, ly-cy
			d2 := dx*dx + dy*dy
			if d2 > radius*radius {
				continue
			}
			t := &tiles[ly*Size+lx]
			if t.Terrain == TerrainWater && kind != ResourceOil {
				continue
			}
			falloff := 1 - float64(d2)/float64(radius*radius+1)
			t.Resource = kind
			t.Amount = uint16(float64(richness)*falloff) + 1
		}
	}
}
