package sim

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/factoryforge/simcore/internal/chunk"
	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/config"
	"github.com/factoryforge/simcore/internal/core/ecs"
	"github.com/factoryforge/simcore/internal/core/event"
	"github.com/factoryforge/simcore/internal/data"
	"github.com/factoryforge/simcore/internal/savegame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// At speed 4 one tick moves an item a quarter tile.
const dt = time.Second / 16

const protoYAML = `
prototypes:
  - {name: belt, kind: belt, speed: 4}
  - {name: splitter, kind: splitter, speed: 4}
  - {name: pipe, kind: pipe, capacity: 100}
  - {name: tank, kind: tank, capacity: 1000}
  - {name: big-tank, kind: tank, capacity: 2500, size: {w: 3, h: 3}}
  - {name: pump, kind: pump, capacity: 100, rate: 120, fluid: water}
  - {name: consumer, kind: consumer, capacity: 100, rate: 10}
`

func tile(x, y int32) component.Tile { return component.Tile{X: x, Y: y} }

func testOptions() Options {
	return Options{Seed: 7, Slot: "default", Strict: true, Chunks: chunk.DefaultOptions()}
}

func newSim(t *testing.T, opts Options, store chunk.Store, saves savegame.Store) *Simulation {
	t.Helper()
	protos, err := data.ParsePrototypes([]byte(protoYAML))
	require.NoError(t, err)
	if store == nil {
		store = chunk.NewMemoryStore()
	}
	s := New(opts, Deps{Chunks: store, Saves: saves, Prototypes: protos, Log: zap.NewNop()})
	t.Cleanup(s.Close)
	return s
}

func place(t *testing.T, s *Simulation, name string, at component.Tile, dir component.Direction) ecs.EntityID {
	t.Helper()
	id, err := s.Place(name, at, dir)
	require.NoError(t, err)
	return id
}

func TestPlacementDrivesBeltRegistry(t *testing.T) {
	s := newSim(t, testOptions(), nil, nil)
	id := place(t, s, "belt", tile(0, 0), component.East)

	e, ok := s.Belts().Entry(tile(0, 0))
	require.True(t, ok)
	assert.Equal(t, id, e.Entity)
	assert.Equal(t, component.East, e.Direction)

	require.NoError(t, s.Rotate(id, component.South))
	e, _ = s.Belts().Entry(tile(0, 0))
	assert.Equal(t, component.South, e.Direction)

	require.NoError(t, s.Move(id, tile(3, 3)))
	_, ok = s.Belts().Entry(tile(0, 0))
	assert.False(t, ok)
	e, ok = s.Belts().Entry(tile(3, 3))
	require.True(t, ok)
	assert.Equal(t, id, e.Entity)
	require.NoError(t, s.CheckInvariants())

	require.NoError(t, s.Remove(id))
	assert.Equal(t, 0, s.Belts().Len())
	assert.Error(t, s.Remove(id))
	require.NoError(t, s.CheckInvariants())
}

func TestPlacementRejections(t *testing.T) {
	s := newSim(t, testOptions(), nil, nil)
	place(t, s, "belt", tile(0, 0), component.East)

	_, err := s.Place("belt", tile(0, 0), component.North)
	assert.ErrorIs(t, err, ErrOccupied)

	place(t, s, "big-tank", tile(5, 5), component.North)
	_, err = s.Place("pipe", tile(7, 7), component.North)
	assert.ErrorIs(t, err, ErrOccupied)
	_, err = s.Place("big-tank", tile(3, 3), component.North)
	assert.ErrorIs(t, err, ErrOccupied, "footprints overlap at (5,5)")
	pipe := place(t, s, "pipe", tile(8, 5), component.North)

	assert.ErrorIs(t, s.Move(pipe, tile(6, 6)), ErrOccupied)
	assert.NoError(t, s.Move(pipe, tile(8, 6)), "moving within own footprint")

	_, err = s.Place("assembler", tile(20, 20), component.North)
	assert.ErrorIs(t, err, data.ErrUnknownPrototype)
	_, err = s.Place("belt", tile(20, 20), component.Direction(9))
	assert.Error(t, err)
	assert.Error(t, s.Rotate(pipe, component.East), "pipes have no direction")
}

func TestWaterLineScenario(t *testing.T) {
	s := newSim(t, testOptions(), nil, nil)
	pump := place(t, s, "pump", tile(0, 0), component.North)
	a := place(t, s, "pipe", tile(1, 0), component.North)
	b := place(t, s, "pipe", tile(2, 0), component.North)
	c := place(t, s, "consumer", tile(3, 0), component.North)

	s.Step(dt)

	require.Equal(t, 1, s.Fluids().Len())
	net := s.Fluids().Networks()[0]
	assert.Equal(t, []ecs.EntityID{pump, a, b, c}, net.Members)
	assert.Equal(t, "water", net.Fluid)

	cons, ok := s.World().Consumers.Get(c)
	require.True(t, ok)
	assert.Greater(t, cons.Box.Level, 0.0)
	assert.LessOrEqual(t, cons.Box.Level, cons.Box.Capacity)
	require.NoError(t, s.CheckInvariants())
}

func TestBeltLineCarriesItems(t *testing.T) {
	s := newSim(t, testOptions(), nil, nil)
	for x := int32(0); x < 3; x++ {
		place(t, s, "belt", tile(x, 0), component.East)
	}
	require.True(t, s.Belts().Insert(tile(0, 0), component.ItemStack{Item: "gear", Count: 1}))

	for i := 0; i < 11; i++ {
		s.Step(dt)
	}
	_, ok := s.Belts().Take(tile(2, 0))
	assert.False(t, ok, "not at the end before tick 12")

	s.Step(dt)
	got, ok := s.Belts().Take(tile(2, 0))
	require.True(t, ok)
	assert.Equal(t, "gear", got.Item)
}

func TestRemovalSplitsFluidNetwork(t *testing.T) {
	s := newSim(t, testOptions(), nil, nil)
	place(t, s, "pipe", tile(0, 0), component.North)
	mid := place(t, s, "pipe", tile(1, 0), component.North)
	place(t, s, "pipe", tile(2, 0), component.North)
	s.Step(dt)
	require.Equal(t, 1, s.Fluids().Len())

	require.NoError(t, s.Remove(mid))
	s.Step(dt)
	assert.Equal(t, 2, s.Fluids().Len())
	require.NoError(t, s.CheckInvariants())
}

func TestDeconstructIsDeferredToCleanup(t *testing.T) {
	s := newSim(t, testOptions(), nil, nil)
	id := place(t, s, "tank", tile(4, 4), component.North)
	s.Step(dt)

	var removed []ecs.EntityID
	event.Subscribe(s.Bus(), func(e event.EntityRemoved) { removed = append(removed, e.EntityID) })

	require.NoError(t, s.Deconstruct(id))
	assert.True(t, s.World().Alive(id))
	assert.Empty(t, removed, "events arrive on the next tick")

	s.Step(dt)
	assert.False(t, s.World().Alive(id))
	assert.Equal(t, []ecs.EntityID{id}, removed)

	s.Step(dt)
	assert.Equal(t, 0, s.Fluids().Len())
	require.NoError(t, s.CheckInvariants())
}

type beltEntry struct {
	Entity    ecs.EntityID
	Direction component.Direction
}

type indexes struct {
	Belts  map[component.Tile]beltEntry
	Fluids [][]ecs.EntityID
	Tiles  map[ecs.EntityID]component.Tile
	Chunks map[ecs.EntityID]chunk.Coord
}

func capture(s *Simulation) indexes {
	ix := indexes{
		Belts:  make(map[component.Tile]beltEntry),
		Tiles:  make(map[ecs.EntityID]component.Tile),
		Chunks: make(map[ecs.EntityID]chunk.Coord),
	}
	for _, e := range s.Belts().Entries() {
		ix.Belts[e.Tile] = beltEntry{e.Entity, e.Direction}
	}
	for _, n := range s.Fluids().Networks() {
		ix.Fluids = append(ix.Fluids, slices.Clone(n.Members))
	}
	slices.SortFunc(ix.Fluids, func(a, b []ecs.EntityID) int { return cmp.Compare(a[0], b[0]) })
	for _, id := range s.World().Positions.IDs() {
		ix.Tiles[id], _ = s.World().TileOf(id)
		ix.Chunks[id], _ = s.Chunks().ChunkOf(id)
	}
	return ix
}

// buildFactory lays out belts and fluids straddling the chunk border at x=32.
func buildFactory(t *testing.T, s *Simulation) {
	t.Helper()
	require.NoError(t, s.Chunks().ForceLoadChunksAround(context.Background(), tile(32, 10)))
	s.Chunks().GetChunk(tile(32, 10)).SetTile(tile(32, 10), chunk.Tile{Terrain: chunk.TerrainSand, Resource: chunk.ResourceStone, Amount: 3})

	for x := int32(28); x < 36; x++ {
		place(t, s, "belt", tile(x, 10), component.East)
	}
	place(t, s, "splitter", tile(36, 10), component.East)
	place(t, s, "belt", tile(37, 10), component.East)
	place(t, s, "belt", tile(36, 9), component.North)
	place(t, s, "belt", tile(36, 11), component.South)

	place(t, s, "pump", tile(30, 20), component.North)
	for x := int32(31); x < 34; x++ {
		place(t, s, "pipe", tile(x, 20), component.North)
	}
	place(t, s, "tank", tile(34, 20), component.North)
	place(t, s, "consumer", tile(35, 20), component.North)
	place(t, s, "pipe", tile(40, 40), component.North)
	place(t, s, "big-tank", tile(-5, -5), component.North)

	for i := 0; i < 8; i++ {
		s.Belts().Insert(tile(28, 10), component.ItemStack{Item: "plate", Count: 1})
		s.Step(dt)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := chunk.NewMemoryStore()
	saves := savegame.Files{Dir: t.TempDir()}

	a := newSim(t, testOptions(), store, saves)
	buildFactory(t, a)
	require.NoError(t, a.CheckInvariants())
	want := capture(a)
	wantSnap := a.Snapshot()
	border := a.Chunks().GetChunk(tile(32, 10))
	require.NotNil(t, border)
	wantTiles := border.Tiles

	require.NoError(t, a.Save(ctx))
	a.Close()

	b := newSim(t, testOptions(), store, saves)
	require.NoError(t, b.Load(ctx, "default"))
	require.NoError(t, b.CheckInvariants())
	assert.Equal(t, want, capture(b))
	assert.Equal(t, wantSnap, b.Snapshot())
	assert.Equal(t, wantSnap.Tick, b.Tick())

	got := b.Chunks().GetChunk(tile(32, 10))
	require.NotNil(t, got)
	assert.Equal(t, wantTiles, got.Tiles)
}

func TestRestoreInPlaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newSim(t, testOptions(), nil, nil)
	buildFactory(t, s)
	want := capture(s)
	snap := s.Snapshot()

	require.NoError(t, s.Restore(ctx, "default", snap))
	require.NoError(t, s.CheckInvariants())
	assert.Equal(t, want, capture(s))

	// and again, on top of the restored state
	require.NoError(t, s.Restore(ctx, "default", s.Snapshot()))
	assert.Equal(t, want, capture(s))
}

func TestRestoreRepairsPipeShapes(t *testing.T) {
	ctx := context.Background()
	s := newSim(t, testOptions(), nil, nil)
	place(t, s, "pump", tile(0, 0), component.North)
	mid := place(t, s, "pipe", tile(1, 0), component.North)
	place(t, s, "pipe", tile(2, 0), component.North)
	place(t, s, "pipe", tile(1, 1), component.North)
	s.Step(dt)

	p, ok := s.World().Pipes.Get(mid)
	require.True(t, ok)
	want := p.Shape

	snap := s.Snapshot()
	for i := range snap.Entities {
		if snap.Entities[i].Pipe != nil {
			snap.Entities[i].Pipe.Shape = 0
		}
	}
	require.NoError(t, s.Restore(ctx, "default", snap))

	p, ok = s.World().Pipes.Get(mid)
	require.True(t, ok)
	assert.Equal(t, want, p.Shape)
	assert.True(t, p.Shape.Has(component.West))
	assert.True(t, p.Shape.Has(component.East))
	assert.True(t, p.Shape.Has(component.South))
	assert.False(t, p.Shape.Has(component.North))
	require.NoError(t, s.CheckInvariants())
}

func TestRestoreRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	s := newSim(t, testOptions(), nil, nil)
	buildFactory(t, s)
	want := capture(s)

	snap := s.Snapshot()
	require.GreaterOrEqual(t, len(snap.Entities), 2)
	snap.Entities[1].ID = snap.Entities[0].ID

	assert.Error(t, s.Restore(ctx, "default", snap))
	assert.Equal(t, want, capture(s), "world untouched")
}

func TestChunkMembershipAcrossStreaming(t *testing.T) {
	opts := testOptions()
	opts.StreamInterval = 1
	opts.Chunks.LoadRadius = 1
	opts.Chunks.EvictRadius = 1
	s := newSim(t, opts, nil, nil)

	home := place(t, s, "pipe", tile(1, 1), component.North)
	far := place(t, s, "pipe", tile(200, 200), component.North)

	s.SetInterest(tile(0, 0))
	s.Step(dt)
	require.NotNil(t, s.Chunks().GetChunk(tile(1, 1)))
	assert.True(t, s.Chunks().GetChunk(tile(1, 1)).Has(home))
	assert.Nil(t, s.Chunks().GetChunk(tile(200, 200)))
	require.NoError(t, s.CheckInvariants())

	s.SetInterest(tile(200, 200))
	s.Step(dt)
	assert.Nil(t, s.Chunks().GetChunk(tile(1, 1)), "home chunk evicted")
	require.NotNil(t, s.Chunks().GetChunk(tile(200, 200)))
	assert.True(t, s.Chunks().GetChunk(tile(200, 200)).Has(far))
	require.NoError(t, s.CheckInvariants())

	require.NoError(t, s.Move(far, tile(1, 2)))
	require.NoError(t, s.CheckInvariants())
	c, ok := s.Chunks().ChunkOf(far)
	require.True(t, ok)
	assert.Equal(t, chunk.Coord{}, c)
}

func TestAutosave(t *testing.T) {
	dir := t.TempDir()
	opts := testOptions()
	opts.AutosaveInterval = 3
	s := newSim(t, opts, nil, savegame.Files{Dir: dir})
	place(t, s, "belt", tile(0, 0), component.East)

	s.Step(dt)
	s.Step(dt)
	_, err := savegame.Read(savegame.Path(dir, "default"))
	assert.ErrorIs(t, err, savegame.ErrNoSave)

	s.Step(dt)
	snap, err := savegame.Read(savegame.Path(dir, "default"))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Tick)
	assert.Len(t, snap.Entities, 1)
}

type brokenStore struct {
	*chunk.MemoryStore
}

func (brokenStore) Save(context.Context, string, *chunk.Record) error {
	return errors.New("disk full")
}

func TestSaveFailureKeepsSimulationRunning(t *testing.T) {
	ctx := context.Background()
	s := newSim(t, testOptions(), brokenStore{chunk.NewMemoryStore()}, nil)
	place(t, s, "belt", tile(0, 0), component.East)
	require.NoError(t, s.Chunks().ForceLoadChunksAround(ctx, tile(0, 0)))

	err := s.Save(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, s.Stats().SaveFailures)
	assert.True(t, s.Chunks().GetChunk(tile(0, 0)).Dirty())

	s.Step(dt)
	s.Step(dt)
	st := s.Stats()
	assert.Equal(t, uint64(2), st.Tick)
	assert.Positive(t, st.ChunkFailures)
}

func TestLoadEmptySlot(t *testing.T) {
	s := newSim(t, testOptions(), nil, savegame.Files{Dir: t.TempDir()})
	assert.ErrorIs(t, s.Load(context.Background(), "nothing"), savegame.ErrNoSave)

	bare := newSim(t, testOptions(), nil, nil)
	assert.ErrorIs(t, bare.Load(context.Background(), "default"), savegame.ErrNoSave)
}

func TestNewGameDiscardsWorld(t *testing.T) {
	ctx := context.Background()
	s := newSim(t, testOptions(), nil, nil)
	buildFactory(t, s)
	require.NoError(t, s.NewGame(ctx, "fresh", 99))

	st := s.Stats()
	assert.Zero(t, st.Entities)
	assert.Zero(t, st.Belts)
	assert.Zero(t, st.FluidNetworks)
	assert.Zero(t, st.Chunks)
	assert.Equal(t, "fresh", s.Slot())
	assert.Equal(t, int64(99), s.Chunks().Seed())
	require.NoError(t, s.CheckInvariants())
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("[simulation]\nseed = 5\nstrict = true\n[storage]\nslot = \"beta\"\n"))
	require.NoError(t, err)
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, int64(5), opts.Seed)
	assert.Equal(t, "beta", opts.Slot)
	assert.True(t, opts.Strict)
	assert.Equal(t, cfg.Chunks.LoadRadius, opts.Chunks.LoadRadius)
	assert.Equal(t, cfg.Chunks.SaveWorkers, opts.Chunks.SaveWorkers)
}
