package savegame

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/factoryforge/simcore/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleSnapshot(t *testing.T) *world.Snapshot {
	t.Helper()
	w := world.New(zap.NewNop())
	a := w.Spawn()
	w.Positions.Set(a, &component.Position{Tile: component.Tile{X: 3, Y: -2}})
	w.Belts.Set(a, &component.Belt{
		Direction: component.East,
		Speed:     1.875,
		Items:     []component.ItemStack{{Item: "iron-plate", Count: 1, Progress: 128}},
	})
	b := w.Spawn()
	w.Positions.Set(b, &component.Position{Tile: component.Tile{X: 4, Y: -2}})
	w.Pipes.Set(b, &component.Pipe{Box: component.FluidBox{Fluid: "water", Capacity: 100, Level: 40}})
	snap := w.Export()
	snap.Seed = 7
	snap.Tick = 99
	return snap
}

func TestWriteRead(t *testing.T) {
	snap := sampleSnapshot(t)
	path := Path(t.TempDir(), "alpha")
	require.NoError(t, Write(path, snap))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "none", "world.yaml"))
	assert.ErrorIs(t, err, ErrNoSave)
}

func TestFilesSlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := Files{Dir: t.TempDir()}
	snap := sampleSnapshot(t)
	require.NoError(t, f.Save(ctx, "a", snap))

	_, err := f.Load(ctx, "b")
	assert.ErrorIs(t, err, ErrNoSave)

	got, err := f.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, snap.Tick, got.Tick)
	assert.Len(t, got.Entities, 2)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte("entities: {"))
	assert.Error(t, err)
}

func TestFilesSlots(t *testing.T) {
	ctx := context.Background()
	f := Files{Dir: t.TempDir()}
	got, err := f.Slots(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, f.Save(ctx, "beta", &world.Snapshot{Seed: 1}))
	require.NoError(t, f.Save(ctx, "alpha", &world.Snapshot{Seed: 2}))
	require.NoError(t, os.MkdirAll(filepath.Join(f.Dir, "chunks-only"), 0o755))

	got, err = f.Slots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, got)

	missing := Files{Dir: filepath.Join(f.Dir, "nope")}
	got, err = missing.Slots(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
