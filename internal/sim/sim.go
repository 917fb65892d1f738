// Package sim owns one running factory: the world, its chunks, belts and
// fluids, and the systems that advance them each tick.
package sim

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/factoryforge/simcore/internal/belt"
	"github.com/factoryforge/simcore/internal/chunk"
	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/config"
	"github.com/factoryforge/simcore/internal/core/event"
	coresys "github.com/factoryforge/simcore/internal/core/system"
	"github.com/factoryforge/simcore/internal/data"
	"github.com/factoryforge/simcore/internal/fluid"
	"github.com/factoryforge/simcore/internal/savegame"
	"github.com/factoryforge/simcore/internal/world"
	"go.uber.org/zap"
)

// Options tune a Simulation.
type Options struct {
	Seed   int64
	Slot   string
	Strict bool
	// AutosaveInterval and StreamInterval are in ticks; 0 disables.
	AutosaveInterval int
	StreamInterval   int
	// TickBudget is the wall time one tick may take before it is logged as slow.
	TickBudget time.Duration
	Chunks     chunk.Options
}

// OptionsFromConfig maps the [simulation], [chunks] and [storage] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Seed:             cfg.Simulation.Seed,
		Slot:             cfg.Storage.Slot,
		Strict:           cfg.Simulation.Strict,
		AutosaveInterval: cfg.Simulation.AutosaveInterval,
		StreamInterval:   cfg.Chunks.StreamInterval,
		TickBudget:       cfg.Simulation.TickRate,
		Chunks: chunk.Options{
			LoadRadius:      cfg.Chunks.LoadRadius,
			EvictRadius:     cfg.Chunks.EvictRadius,
			ForceLoadRadius: cfg.Chunks.ForceLoadRadius,
			SaveWorkers:     cfg.Chunks.SaveWorkers,
			WriteQueue:      cfg.Chunks.WriteQueue,
		},
	}
}

// Deps are the collaborators a Simulation is built from. Generator and
// Saves may be nil.
type Deps struct {
	Chunks     chunk.Store
	Generator  chunk.Generator
	Saves      savegame.Store
	Prototypes *data.PrototypeTable
	Log        *zap.Logger
}

// Simulation is the single owner of all simulation state. It is driven
// from one goroutine; only chunk writes run in the background.
type Simulation struct {
	world  *world.World
	chunks *chunk.Manager
	belts  *belt.Network
	fluids *fluid.System
	bus    *event.Bus
	runner *coresys.Runner

	protos *data.PrototypeTable
	saves  savegame.Store
	log    *zap.Logger
	opts   Options

	tick          uint64
	saveFailures  int
	chunkFailures int
}

func New(opts Options, deps Deps) *Simulation {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Slot == "" {
		opts.Slot = "default"
	}
	bus := event.NewBus()
	w := world.New(log.Named("world"))
	mgr := chunk.NewManager(deps.Chunks, deps.Generator, opts.Chunks, bus, log.Named("chunk"))
	mgr.SetSaveSlot(opts.Slot)
	mgr.UpdateSeed(opts.Seed)
	mgr.SetLocator(w)
	w.SetChunkTracker(mgr)

	belts := belt.NewNetwork(w, log.Named("belt"))
	belts.Strict = opts.Strict

	s := &Simulation{
		world:  w,
		chunks: mgr,
		belts:  belts,
		fluids: fluid.NewSystem(w, log.Named("fluid")),
		bus:    bus,
		runner: coresys.NewRunner(log.Named("runner")),
		protos: deps.Prototypes,
		saves:  deps.Saves,
		log:    log,
		opts:   opts,
	}
	s.runner.SetBudget(opts.TickBudget)
	s.observe()
	s.subscribe()

	s.runner.Register(NewEventSystem(bus))
	s.runner.Register(NewStreamSystem(s, opts.StreamInterval))
	s.runner.Register(NewTopologySystem(s.fluids, bus))
	s.runner.Register(NewFluidSystem(s.fluids))
	s.runner.Register(NewBeltSystem(s.belts))
	s.runner.Register(NewAutosaveSystem(s, opts.AutosaveInterval))
	s.runner.Register(NewCleanupSystem(w.World))
	return s
}

func (s *Simulation) World() *world.World     { return s.world }
func (s *Simulation) Chunks() *chunk.Manager  { return s.chunks }
func (s *Simulation) Belts() *belt.Network    { return s.belts }
func (s *Simulation) Fluids() *fluid.System   { return s.fluids }
func (s *Simulation) Bus() *event.Bus         { return s.bus }
func (s *Simulation) Tick() uint64            { return s.tick }
func (s *Simulation) Slot() string            { return s.chunks.SaveSlot() }
func (s *Simulation) Log() *zap.Logger        { return s.log }
func (s *Simulation) Runner() *coresys.Runner { return s.runner }

// Step advances the simulation by one tick. Systems see the new tick
// number while they run.
func (s *Simulation) Step(dt time.Duration) {
	s.tick++
	s.runner.Tick(dt)
}

// SetInterest replaces the tiles chunk streaming keeps loaded around.
func (s *Simulation) SetInterest(points ...component.Tile) {
	s.chunks.SetInterest(points...)
}

// Snapshot captures the world for saving.
func (s *Simulation) Snapshot() *world.Snapshot {
	snap := s.world.Export()
	snap.Seed = s.chunks.Seed()
	snap.Tick = s.tick
	return snap
}

// Save writes the world snapshot and every resident chunk to the current
// slot. A failure is reported and leaves the simulation running.
func (s *Simulation) Save(ctx context.Context) error {
	var errs []error
	if s.saves != nil {
		if err := s.saves.Save(ctx, s.Slot(), s.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("save snapshot: %w", err))
		}
	}
	if err := s.chunks.SaveAllChunks(ctx); err != nil {
		errs = append(errs, fmt.Errorf("save chunks: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.saveFailures++
		s.log.Error("save failed", zap.String("slot", s.Slot()), zap.Uint64("tick", s.tick), zap.Error(err))
		return err
	}
	s.log.Info("saved", zap.String("slot", s.Slot()), zap.Uint64("tick", s.tick),
		zap.Int("entities", s.world.Pool().Len()), zap.Int("chunks", s.chunks.Len()))
	return nil
}

// Load reads slot's snapshot and restores it. savegame.ErrNoSave means the
// slot is empty and nothing changed.
func (s *Simulation) Load(ctx context.Context, slot string) error {
	if s.saves == nil {
		return savegame.ErrNoSave
	}
	snap, err := s.saves.Load(ctx, slot)
	if err != nil {
		return err
	}
	return s.Restore(ctx, slot, snap)
}

// Restore replaces the running world with snap and rebuilds every derived
// index in dependency order: world, chunks around entities, belt
// registry, fluid networks, spatial index.
func (s *Simulation) Restore(ctx context.Context, slot string, snap *world.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := s.chunks.ClearLoadedChunks(ctx, false); err != nil {
		return fmt.Errorf("restore: clear chunks: %w", err)
	}
	s.chunks.UpdateSeed(snap.Seed)
	s.world.Import(snap)
	s.tick = snap.Tick

	s.chunks.SetSaveSlot(slot)
	if err := s.forceLoadAroundEntities(ctx); err != nil {
		return fmt.Errorf("restore: load chunks: %w", err)
	}

	s.RebuildBelts()
	s.RebuildFluids()
	s.world.RebuildSpatialIndex()

	s.log.Info("world restored",
		zap.String("slot", slot),
		zap.Uint64("tick", s.tick),
		zap.Int("entities", len(snap.Entities)),
		zap.Int("chunks", s.chunks.Len()),
		zap.Int("belts", s.belts.Len()),
		zap.Int("fluid_networks", s.fluids.Len()))
	return nil
}

// forceLoadAroundEntities makes resident the chunks under every positioned
// entity and its eight neighbouring tiles.
func (s *Simulation) forceLoadAroundEntities(ctx context.Context) error {
	coords := make(map[chunk.Coord]struct{})
	for _, id := range s.world.Positions.IDs() {
		t, _ := s.world.TileOf(id)
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				coords[chunk.CoordOf(component.Tile{X: t.X + dx, Y: t.Y + dy})] = struct{}{}
			}
		}
	}
	ordered := make([]chunk.Coord, 0, len(coords))
	for c := range coords {
		ordered = append(ordered, c)
	}
	slices.SortFunc(ordered, func(a, b chunk.Coord) int {
		if a.Y != b.Y {
			return cmp.Compare(a.Y, b.Y)
		}
		return cmp.Compare(a.X, b.X)
	})
	for _, c := range ordered {
		if err := s.chunks.ForceLoadChunksAround(ctx, c.Origin()); err != nil {
			return err
		}
	}
	return nil
}

// RebuildBelts re-registers every positioned belt from world state.
func (s *Simulation) RebuildBelts() {
	s.belts.Reset()
	for _, id := range s.world.Query(s.world.Belts, s.world.Positions) {
		b, _ := s.world.Belts.Get(id)
		t, _ := s.world.TileOf(id)
		s.belts.RegisterBelt(id, t, b.Direction)
	}
}

// RebuildFluids discards fluid membership and resolves it from scratch.
func (s *Simulation) RebuildFluids() {
	s.fluids.Reset()
	for _, id := range s.world.FluidEntities() {
		s.fluids.MarkEntityDirty(id)
	}
	s.runner.TickPhase(coresys.PhaseTopology, 0)
	s.fluids.RecomputePipeShapes()
}

// NewGame discards the running world and starts an empty one in slot.
func (s *Simulation) NewGame(ctx context.Context, slot string, seed int64) error {
	if err := s.chunks.ClearLoadedChunks(ctx, false); err != nil {
		return err
	}
	s.world.Clear()
	s.belts.Reset()
	s.fluids.Reset()
	s.chunks.SetSaveSlot(slot)
	s.chunks.UpdateSeed(seed)
	s.tick = 0
	s.log.Info("new game", zap.String("slot", slot), zap.Int64("seed", seed))
	return nil
}

// Close flushes background chunk writes.
func (s *Simulation) Close() {
	s.chunks.Close()
}

// Stats is a point-in-time summary for logs and tests.
type Stats struct {
	Tick          uint64
	Entities      int
	Chunks        int
	Belts         int
	FluidNetworks int
	SaveFailures  int // failed Save calls
	SlowTicks     uint64
	ChunkFailures int // failed chunk writes, reported one tick late
}

func (s *Simulation) Stats() Stats {
	return Stats{
		Tick:          s.tick,
		Entities:      s.world.Pool().Len(),
		Chunks:        s.chunks.Len(),
		Belts:         s.belts.Len(),
		FluidNetworks: s.fluids.Len(),
		SaveFailures:  s.saveFailures,
		SlowTicks:     s.runner.SlowTicks(),
		ChunkFailures: s.chunkFailures,
	}
}
