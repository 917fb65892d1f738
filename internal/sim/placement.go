package sim

import (
	"errors"
	"fmt"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/core/event"
	"github.com/factoryforge/simcore/internal/data"
	"go.uber.org/zap"
)

// ErrOccupied is returned when a footprint overlaps a colliding entity.
var ErrOccupied = errors.New("tile occupied")

// maxFootprint bounds prototype sizes for the occupancy search.
const maxFootprint = 8

type rect struct {
	x0, y0, x1, y1 int32 // half-open
}

func footprint(t component.Tile, c component.Collision) rect {
	w, h := max(c.Width, 1), max(c.Height, 1)
	return rect{t.X, t.Y, t.X + w, t.Y + h}
}

func (r rect) overlaps(o rect) bool {
	return r.x0 < o.x1 && o.x0 < r.x1 && r.y0 < o.y1 && o.y0 < r.y1
}

// blocker returns a colliding entity overlapping r, ignoring self.
func (s *Simulation) blocker(r rect, self ecs.EntityID) (ecs.EntityID, bool) {
	center := component.Tile{X: r.x0, Y: r.y0}
	for _, id := range s.world.Nearby(center, maxFootprint) {
		if id == self {
			continue
		}
		c, ok := s.world.Collisions.Get(id)
		if !ok {
			continue
		}
		t, _ := s.world.TileOf(id)
		if footprint(t, *c).overlaps(r) {
			return id, true
		}
	}
	return 0, false
}

// Place spawns an entity from the named prototype with its origin at t.
// Belts and splitters face dir; other kinds ignore it.
func (s *Simulation) Place(name string, t component.Tile, dir component.Direction) (ecs.EntityID, error) {
	if s.protos == nil {
		return 0, fmt.Errorf("place %s: %w", name, data.ErrUnknownPrototype)
	}
	p, err := s.protos.Get(name)
	if err != nil {
		return 0, fmt.Errorf("place: %w", err)
	}
	if !dir.Valid() {
		return 0, fmt.Errorf("place %s: invalid direction %d", name, dir)
	}
	col := component.Collision{Width: min(p.Size.W, maxFootprint), Height: min(p.Size.H, maxFootprint)}
	if other, busy := s.blocker(footprint(t, col), 0); busy {
		return 0, fmt.Errorf("place %s at %s: %w by %s", name, t, ErrOccupied, other)
	}

	w := s.world
	id := w.Spawn()
	w.Positions.Set(id, &component.Position{Tile: t})
	w.Collisions.Set(id, &col)
	w.Sprites.Set(id, &component.Sprite{Name: p.Sprite})

	switch p.Kind {
	case data.KindBelt:
		w.Belts.Set(id, &component.Belt{Direction: dir, Speed: p.Speed})
	case data.KindSplitter:
		w.Belts.Set(id, &component.Belt{Direction: dir, Speed: p.Speed})
		w.Splitters.Set(id, &component.Splitter{})
	case data.KindPipe:
		w.Pipes.Set(id, &component.Pipe{Box: component.FluidBox{Capacity: p.Capacity}})
	case data.KindTank:
		w.Tanks.Set(id, &component.FluidTank{Box: component.FluidBox{Capacity: p.Capacity}})
	case data.KindPump:
		w.Producers.Set(id, &component.FluidProducer{
			Box:  component.FluidBox{Fluid: p.Fluid, Capacity: p.Capacity},
			Rate: p.Rate,
		})
	case data.KindConsumer:
		w.Consumers.Set(id, &component.FluidConsumer{
			Box:  component.FluidBox{Capacity: p.Capacity},
			Rate: p.Rate,
		})
	}
	s.log.Debug("entity placed", zap.String("prototype", name), zap.Stringer("tile", t), zap.Stringer("id", id))
	return id, nil
}

// Remove destroys id immediately. Belt and fluid indexes follow through
// the world observers.
func (s *Simulation) Remove(id ecs.EntityID) error {
	if !s.world.Alive(id) {
		return fmt.Errorf("remove %s: entity not alive", id)
	}
	s.world.Despawn(id)
	event.Emit(s.bus, event.EntityRemoved{EntityID: id})
	return nil
}

// Deconstruct queues id for destruction at the end of the current tick.
func (s *Simulation) Deconstruct(id ecs.EntityID) error {
	if !s.world.Alive(id) {
		return fmt.Errorf("deconstruct %s: entity not alive", id)
	}
	s.world.MarkForDestruction(id)
	event.Emit(s.bus, event.EntityRemoved{EntityID: id})
	return nil
}

// Rotate turns a belt or splitter to face dir. Items on it are kept.
func (s *Simulation) Rotate(id ecs.EntityID, dir component.Direction) error {
	if !dir.Valid() {
		return fmt.Errorf("rotate %s: invalid direction %d", id, dir)
	}
	b, ok := s.world.Belts.Get(id)
	if !ok {
		return fmt.Errorf("rotate %s: entity has no direction", id)
	}
	next := *b
	next.Direction = dir
	s.world.Belts.Set(id, &next)
	return nil
}

// Move relocates id so its origin stands on t.
func (s *Simulation) Move(id ecs.EntityID, t component.Tile) error {
	if !s.world.Alive(id) {
		return fmt.Errorf("move %s: entity not alive", id)
	}
	if c, ok := s.world.Collisions.Get(id); ok {
		if other, busy := s.blocker(footprint(t, *c), id); busy {
			return fmt.Errorf("move %s to %s: %w by %s", id, t, ErrOccupied, other)
		}
	}
	s.world.Move(id, t)
	return nil
}
