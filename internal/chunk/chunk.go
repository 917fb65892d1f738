package chunk

import (
	"fmt"
	"slices"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
)

// Size is the edge length of a chunk in tiles.
const Size = 32

const area = Size * Size

// Coord identifies a chunk on the chunk grid.
type Coord struct {
	X int32 `yaml:"x"`
	Y int32 `yaml:"y"`
}

func (c Coord) String() string { return fmt.Sprintf("[%d,%d]", c.X, c.Y) }

// Origin returns the chunk's top-left tile.
func (c Coord) Origin() component.Tile {
	return component.Tile{X: c.X * Size, Y: c.Y * Size}
}

// Distance is the Chebyshev distance between two chunk coordinates.
func (c Coord) Distance(o Coord) int32 {
	dx, dy := abs32(c.X-o.X), abs32(c.Y-o.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func floorDiv(v int32) int32 {
	if v < 0 {
		return (v - Size + 1) / Size
	}
	return v / Size
}

// CoordOf maps a world tile to the chunk that contains it.
func CoordOf(t component.Tile) Coord {
	return Coord{X: floorDiv(t.X), Y: floorDiv(t.Y)}
}

// Terrain kinds.
const (
	TerrainWater uint8 = iota
	TerrainSand
	TerrainGrass
	TerrainDirt
	TerrainRock
)

// Resource kinds placed as deposits.
const (
	ResourceNone uint8 = iota
	ResourceIron
	ResourceCopper
	ResourceCoal
	ResourceStone
	ResourceOil
)

// Tile is the terrain record of one tile.
type Tile struct {
	Terrain  uint8
	Resource uint8
	Amount   uint16
}

// Chunk is a resident chunk: terrain plus the entities standing in it.
type Chunk struct {
	Coord    Coord
	Tiles    [area]Tile
	entities map[ecs.EntityID]struct{}
	dirty    bool
}

func newChunk(c Coord) *Chunk {
	return &Chunk{Coord: c, entities: make(map[ecs.EntityID]struct{})}
}

func localIndex(t component.Tile) int {
	lx := t.X - floorDiv(t.X)*Size
	ly := t.Y - floorDiv(t.Y)*Size
	return int(ly)*Size + int(lx)
}

// TileAt returns the terrain of a world tile inside this chunk.
func (c *Chunk) TileAt(t component.Tile) (Tile, bool) {
	if CoordOf(t) != c.Coord {
		return Tile{}, false
	}
	return c.Tiles[localIndex(t)], true
}

// SetTile edits terrain and marks the chunk dirty.
func (c *Chunk) SetTile(t component.Tile, v Tile) bool {
	if CoordOf(t) != c.Coord {
		return false
	}
	c.Tiles[localIndex(t)] = v
	c.dirty = true
	return true
}

// Has reports whether id is a member of the chunk.
func (c *Chunk) Has(id ecs.EntityID) bool {
	_, ok := c.entities[id]
	return ok
}

// Entities returns the members in ascending id order.
func (c *Chunk) Entities() []ecs.EntityID {
	out := make([]ecs.EntityID, 0, len(c.entities))
	for id := range c.entities {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the member count.
func (c *Chunk) Len() int { return len(c.entities) }

// Dirty reports whether the chunk changed since it was last persisted.
func (c *Chunk) Dirty() bool { return c.dirty }

func (c *Chunk) add(id ecs.EntityID) {
	if _, ok := c.entities[id]; !ok {
		c.entities[id] = struct{}{}
		c.dirty = true
	}
}

func (c *Chunk) remove(id ecs.EntityID) {
	if _, ok := c.entities[id]; ok {
		delete(c.entities, id)
		c.dirty = true
	}
}

// record snapshots the chunk for storage.
func (c *Chunk) record() *Record {
	ids := c.Entities()
	refs := make([]uint64, len(ids))
	for i, id := range ids {
		refs[i] = uint64(id)
	}
	return &Record{
		Coord:    c.Coord,
		Terrain:  packTiles(c.Tiles[:]),
		Entities: refs,
	}
}
