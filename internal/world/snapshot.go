package world

import (
	"fmt"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"go.uber.org/zap"
)

// EntityRecord is the serialisable form of one entity and its components.
type EntityRecord struct {
	ID        uint64                   `yaml:"id"`
	Position  *component.Position      `yaml:"position,omitempty"`
	Collision *component.Collision     `yaml:"collision,omitempty"`
	Sprite    *component.Sprite        `yaml:"sprite,omitempty"`
	Belt      *component.Belt          `yaml:"belt,omitempty"`
	Splitter  *component.Splitter      `yaml:"splitter,omitempty"`
	Pipe      *component.Pipe          `yaml:"pipe,omitempty"`
	Tank      *component.FluidTank     `yaml:"tank,omitempty"`
	Producer  *component.FluidProducer `yaml:"producer,omitempty"`
	Consumer  *component.FluidConsumer `yaml:"consumer,omitempty"`
}

// Snapshot is the entity graph of a world at one instant.
type Snapshot struct {
	Seed     int64          `yaml:"seed"`
	Tick     uint64         `yaml:"tick"`
	Entities []EntityRecord `yaml:"entities"`
}

func copyOf[T any](s *ecs.Store[T], id ecs.EntityID) *T {
	c, ok := s.Get(id)
	if !ok {
		return nil
	}
	v := *c
	return &v
}

// Export copies every live entity into a snapshot, ascending by id.
// Entities without components are skipped.
func (w *World) Export() *Snapshot {
	snap := &Snapshot{}
	for _, id := range w.Entities() {
		rec := EntityRecord{
			ID:        uint64(id),
			Position:  copyOf(w.Positions, id),
			Collision: copyOf(w.Collisions, id),
			Sprite:    copyOf(w.Sprites, id),
			Belt:      copyOf(w.Belts, id),
			Splitter:  copyOf(w.Splitters, id),
			Pipe:      copyOf(w.Pipes, id),
			Tank:      copyOf(w.Tanks, id),
			Producer:  copyOf(w.Producers, id),
			Consumer:  copyOf(w.Consumers, id),
		}
		if rec.empty() {
			continue
		}
		if rec.Belt != nil {
			rec.Belt.Items = append([]component.ItemStack(nil), rec.Belt.Items...)
		}
		snap.Entities = append(snap.Entities, rec)
	}
	return snap
}

func (r *EntityRecord) empty() bool {
	return r.Position == nil && r.Collision == nil && r.Sprite == nil &&
		r.Belt == nil && r.Splitter == nil && r.Pipe == nil &&
		r.Tank == nil && r.Producer == nil && r.Consumer == nil
}

// Validate reports the first zero or duplicate entity index in snap.
func (snap *Snapshot) Validate() error {
	seen := make(map[uint32]struct{}, len(snap.Entities))
	for _, rec := range snap.Entities {
		if rec.ID == 0 {
			return fmt.Errorf("snapshot: zero entity id")
		}
		idx := ecs.EntityID(rec.ID).Index()
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("snapshot: duplicate entity index %d", idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// Import clears the world and recreates every entity of snap with its
// original id. Observers fire as components are attached. A duplicate or
// zero id is a contract violation and panics before any entity of snap is
// created; callers holding untrusted data check Validate first.
func (w *World) Import(snap *Snapshot) {
	if err := snap.Validate(); err != nil {
		panic("world: import: " + err.Error())
	}

	w.Clear()
	for i := range snap.Entities {
		rec := snap.Entities[i]
		id := ecs.EntityID(rec.ID)
		w.Pool().Restore(id)
		// Position first so later observers can see the tile.
		setIf(w.Positions, id, rec.Position)
		setIf(w.Collisions, id, rec.Collision)
		setIf(w.Sprites, id, rec.Sprite)
		if rec.Belt != nil {
			b := *rec.Belt
			b.Items = append([]component.ItemStack(nil), rec.Belt.Items...)
			w.Belts.Set(id, &b)
		}
		setIf(w.Splitters, id, rec.Splitter)
		setIf(w.Pipes, id, rec.Pipe)
		setIf(w.Tanks, id, rec.Tank)
		setIf(w.Producers, id, rec.Producer)
		setIf(w.Consumers, id, rec.Consumer)
	}
	w.log.Info("world imported", zap.Int("entities", len(snap.Entities)))
}

func setIf[T any](s *ecs.Store[T], id ecs.EntityID, c *T) {
	if c == nil {
		return
	}
	v := *c
	s.Set(id, &v)
}
