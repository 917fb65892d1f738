package sim

import (
	"context"
	"time"

	"github.com/factoryforge/simcore/internal/belt"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/core/event"
	coresys "github.com/factoryforge/simcore/internal/core/system"
	"github.com/factoryforge/simcore/internal/fluid"
	"go.uber.org/zap"
)

// EventSystem delivers last tick's events at the start of this one.
// Phase PreUpdate.
type EventSystem struct {
	bus *event.Bus
}

func NewEventSystem(bus *event.Bus) *EventSystem {
	return &EventSystem{bus: bus}
}

func (s *EventSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }
func (s *EventSystem) Name() string         { return "events" }

func (s *EventSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}

// StreamSystem loads and evicts chunks around the interest points every
// interval ticks. Phase Stream.
type StreamSystem struct {
	sim       *Simulation
	tickCount int
	interval  int
}

func NewStreamSystem(s *Simulation, intervalTicks int) *StreamSystem {
	return &StreamSystem{sim: s, interval: intervalTicks}
}

func (s *StreamSystem) Phase() coresys.Phase { return coresys.PhaseStream }
func (s *StreamSystem) Name() string         { return "stream" }

func (s *StreamSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	loaded, evicted, err := s.sim.chunks.Stream(ctx)
	if err != nil {
		s.sim.log.Warn("chunk streaming failed", zap.Error(err))
		return
	}
	if loaded > 0 || evicted > 0 {
		s.sim.log.Debug("chunks streamed", zap.Int("loaded", loaded), zap.Int("evicted", evicted))
	}
}

// TopologySystem resolves fluid networks touched since the last tick.
// Phase Topology.
type TopologySystem struct {
	fluids *fluid.System
	bus    *event.Bus
}

func NewTopologySystem(f *fluid.System, bus *event.Bus) *TopologySystem {
	return &TopologySystem{fluids: f, bus: bus}
}

func (s *TopologySystem) Phase() coresys.Phase { return coresys.PhaseTopology }
func (s *TopologySystem) Name() string         { return "topology" }

func (s *TopologySystem) Update(_ time.Duration) {
	if touched := s.fluids.Resolve(); touched > 0 {
		event.Emit(s.bus, event.NetworksRebuilt{Touched: touched, Networks: s.fluids.Len()})
	}
}

// FluidSystem moves fluid inside every network. Phase Update.
type FluidSystem struct {
	fluids *fluid.System
}

func NewFluidSystem(f *fluid.System) *FluidSystem {
	return &FluidSystem{fluids: f}
}

func (s *FluidSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }
func (s *FluidSystem) Name() string         { return "fluid" }

func (s *FluidSystem) Update(dt time.Duration) {
	s.fluids.Flow(dt)
}

// BeltSystem moves items along belts. Phase Update.
type BeltSystem struct {
	belts *belt.Network
}

func NewBeltSystem(n *belt.Network) *BeltSystem {
	return &BeltSystem{belts: n}
}

func (s *BeltSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }
func (s *BeltSystem) Name() string         { return "belt" }

func (s *BeltSystem) Update(dt time.Duration) {
	s.belts.Tick(dt)
}

// AutosaveSystem periodically saves the running slot. Failures are logged
// and retried at the next interval. Phase Persist.
type AutosaveSystem struct {
	sim       *Simulation
	tickCount int
	interval  int // auto-save every N ticks
}

func NewAutosaveSystem(s *Simulation, intervalTicks int) *AutosaveSystem {
	return &AutosaveSystem{sim: s, interval: intervalTicks}
}

func (s *AutosaveSystem) Phase() coresys.Phase { return coresys.PhasePersist }
func (s *AutosaveSystem) Name() string         { return "autosave" }

func (s *AutosaveSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = s.sim.Save(ctx) // logged by Save
}

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Phase Cleanup.
type CleanupSystem struct {
	world *ecs.World
}

func NewCleanupSystem(w *ecs.World) *CleanupSystem {
	return &CleanupSystem{world: w}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }
func (s *CleanupSystem) Name() string         { return "cleanup" }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.world.FlushDestroyQueue()
}
