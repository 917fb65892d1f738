package sim

import (
	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/core/event"
	"github.com/factoryforge/simcore/internal/fluid"
	"go.uber.org/zap"
)

// observe keeps the belt registry and fluid dirty set in step with world
// mutations. RebuildBelts and RebuildFluids remain as full repairs.
func (s *Simulation) observe() {
	w := s.world
	w.Belts.Observe(
		func(id ecs.EntityID, _, next *component.Belt) {
			if t, ok := w.TileOf(id); ok {
				s.belts.RegisterBelt(id, t, next.Direction)
			}
		},
		func(id ecs.EntityID, _ *component.Belt) {
			s.belts.UnregisterEntity(id)
		},
	)
	w.Positions.Observe(
		func(id ecs.EntityID, _, next *component.Position) {
			if b, ok := w.Belts.Get(id); ok {
				s.belts.RegisterBelt(id, next.Tile, b.Direction)
			}
			if w.IsFluid(id) {
				s.fluids.MarkEntityDirty(id)
			}
		},
		func(id ecs.EntityID, _ *component.Position) {
			s.belts.UnregisterEntity(id)
			s.fluids.MarkEntityDirty(id)
		},
	)
	observeFluid(w.Pipes, s.fluids)
	observeFluid(w.Tanks, s.fluids)
	observeFluid(w.Producers, s.fluids)
	observeFluid(w.Consumers, s.fluids)
}

func observeFluid[T any](store *ecs.Store[T], f *fluid.System) {
	store.Observe(
		func(id ecs.EntityID, _, _ *T) { f.MarkEntityDirty(id) },
		func(id ecs.EntityID, _ *T) { f.MarkEntityDirty(id) },
	)
}

func (s *Simulation) subscribe() {
	event.Subscribe(s.bus, func(e event.ChunkSaveFailed) {
		s.chunkFailures++
		s.log.Warn("chunk write failed",
			zap.String("slot", e.Slot), zap.Int32("x", e.X), zap.Int32("y", e.Y), zap.Error(e.Err))
	})
	event.Subscribe(s.bus, func(e event.ChunkLoaded) {
		s.log.Debug("chunk loaded",
			zap.Int32("x", e.X), zap.Int32("y", e.Y), zap.Bool("generated", e.Generated), zap.Int("entities", e.Entities))
	})
	event.Subscribe(s.bus, func(e event.ChunkEvicted) {
		s.log.Debug("chunk evicted", zap.Int32("x", e.X), zap.Int32("y", e.Y), zap.Bool("saved", e.Saved))
	})
	event.Subscribe(s.bus, func(e event.NetworksRebuilt) {
		s.log.Debug("fluid networks rebuilt", zap.Int("touched", e.Touched), zap.Int("networks", e.Networks))
	})
}
