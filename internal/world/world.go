package world

import (
	"slices"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"go.uber.org/zap"
)

// ChunkTracker receives chunk membership changes for positioned entities.
// The chunk manager implements it.
type ChunkTracker interface {
	Track(id ecs.EntityID, t component.Tile)
	Untrack(id ecs.EntityID, t component.Tile)
	// Reindex replaces all membership with the given positions.
	Reindex(positions map[ecs.EntityID]component.Tile)
}

// FluidKind tells which fluid component an entity carries.
type FluidKind uint8

const (
	FluidNone FluidKind = iota
	FluidPipe
	FluidTank
	FluidProducer
	FluidConsumer
)

// World owns every entity and component of the simulation. Position changes
// keep the spatial index and the chunk tracker in step as a side effect.
// Accessed only from the simulation goroutine.
type World struct {
	*ecs.World

	Positions  *ecs.Store[component.Position]
	Collisions *ecs.Store[component.Collision]
	Sprites    *ecs.Store[component.Sprite]
	Belts      *ecs.Store[component.Belt]
	Splitters  *ecs.Store[component.Splitter]
	Pipes      *ecs.Store[component.Pipe]
	Tanks      *ecs.Store[component.FluidTank]
	Producers  *ecs.Store[component.FluidProducer]
	Consumers  *ecs.Store[component.FluidConsumer]

	spatial *SpatialIndex
	tracker ChunkTracker
	log     *zap.Logger
}

func New(log *zap.Logger) *World {
	core := ecs.NewWorld()
	w := &World{
		World: core,
		// Positions registers first so it is detached last on destroy.
		Positions:  ecs.NewStore[component.Position](core, "position"),
		Collisions: ecs.NewStore[component.Collision](core, "collision"),
		Sprites:    ecs.NewStore[component.Sprite](core, "sprite"),
		Belts:      ecs.NewStore[component.Belt](core, "belt"),
		Splitters:  ecs.NewStore[component.Splitter](core, "splitter"),
		Pipes:      ecs.NewStore[component.Pipe](core, "pipe"),
		Tanks:      ecs.NewStore[component.FluidTank](core, "fluid_tank"),
		Producers:  ecs.NewStore[component.FluidProducer](core, "fluid_producer"),
		Consumers:  ecs.NewStore[component.FluidConsumer](core, "fluid_consumer"),
		spatial:    NewSpatialIndex(),
		log:        log,
	}
	w.Positions.Observe(w.onPositionSet, w.onPositionRemove)
	return w
}

// SetChunkTracker installs the chunk membership receiver. Existing
// positions are replayed into it.
func (w *World) SetChunkTracker(t ChunkTracker) {
	w.tracker = t
	if t != nil {
		t.Reindex(w.positionMap())
	}
}

func (w *World) onPositionSet(id ecs.EntityID, prev, next *component.Position) {
	if prev == nil {
		w.spatial.Add(id, next.Tile)
		if w.tracker != nil {
			w.tracker.Track(id, next.Tile)
		}
		return
	}
	if prev.Tile == next.Tile {
		return
	}
	w.spatial.Move(id, prev.Tile, next.Tile)
	if w.tracker != nil {
		w.tracker.Untrack(id, prev.Tile)
		w.tracker.Track(id, next.Tile)
	}
}

func (w *World) onPositionRemove(id ecs.EntityID, prev *component.Position) {
	w.spatial.Remove(id, prev.Tile)
	if w.tracker != nil {
		w.tracker.Untrack(id, prev.Tile)
	}
}

// Spawn allocates a fresh entity with no components.
func (w *World) Spawn() ecs.EntityID {
	return w.CreateEntity()
}

// Despawn removes every component of id (detaching it from the spatial
// index, its chunk and every observer-backed index) and frees the id.
// Safe to call while ranging over a Query result.
func (w *World) Despawn(id ecs.EntityID) {
	w.Destroy(id)
}

// Move sets the entity's tile, keeping its sub-tile offset.
func (w *World) Move(id ecs.EntityID, t component.Tile) {
	p, ok := w.Positions.Get(id)
	if !ok {
		w.Positions.Set(id, &component.Position{Tile: t})
		return
	}
	next := *p
	next.Tile = t
	w.Positions.Set(id, &next)
}

// TileOf returns the entity's tile.
func (w *World) TileOf(id ecs.EntityID) (component.Tile, bool) {
	p, ok := w.Positions.Get(id)
	if !ok {
		return component.Tile{}, false
	}
	return p.Tile, true
}

// Query returns entities having every listed component, ascending by id.
func (w *World) Query(sets ...ecs.Set) []ecs.EntityID {
	return ecs.Query(sets...)
}

// At returns the entities on a tile.
func (w *World) At(t component.Tile) []ecs.EntityID { return w.spatial.At(t) }

// Nearby returns the entities within radius tiles of t.
func (w *World) Nearby(t component.Tile, radius int32) []ecs.EntityID {
	return w.spatial.Nearby(t, radius)
}

// Spatial exposes the index for consistency checks.
func (w *World) Spatial() *SpatialIndex { return w.spatial }

// RebuildSpatialIndex recomputes the spatial index and chunk membership
// from the Position store. Post-load repair; not for the hot path.
func (w *World) RebuildSpatialIndex() {
	w.spatial.Reset()
	positions := w.positionMap()
	for id, t := range positions {
		w.spatial.Add(id, t)
	}
	if w.tracker != nil {
		w.tracker.Reindex(positions)
	}
	w.log.Debug("spatial index rebuilt", zap.Int("entities", len(positions)))
}

func (w *World) positionMap() map[ecs.EntityID]component.Tile {
	out := make(map[ecs.EntityID]component.Tile, w.Positions.Len())
	w.Positions.Each(func(id ecs.EntityID, p *component.Position) {
		out[id] = p.Tile
	})
	return out
}

// Clear despawns every entity.
func (w *World) Clear() {
	w.World.Reset()
}

// FluidBox returns the fluid record of whichever fluid component id carries.
func (w *World) FluidBox(id ecs.EntityID) (*component.FluidBox, FluidKind) {
	if p, ok := w.Pipes.Get(id); ok {
		return &p.Box, FluidPipe
	}
	if t, ok := w.Tanks.Get(id); ok {
		return &t.Box, FluidTank
	}
	if p, ok := w.Producers.Get(id); ok {
		return &p.Box, FluidProducer
	}
	if c, ok := w.Consumers.Get(id); ok {
		return &c.Box, FluidConsumer
	}
	return nil, FluidNone
}

// IsFluid reports whether id carries any fluid component.
func (w *World) IsFluid(id ecs.EntityID) bool {
	_, kind := w.FluidBox(id)
	return kind != FluidNone
}

// FluidEntities returns every fluid-capable entity in ascending id order.
func (w *World) FluidEntities() []ecs.EntityID {
	seen := make(map[ecs.EntityID]struct{})
	var out []ecs.EntityID
	for _, s := range []ecs.Set{w.Pipes, w.Tanks, w.Producers, w.Consumers} {
		for _, id := range s.IDs() {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	slices.Sort(out)
	return out
}
