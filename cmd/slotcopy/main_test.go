package main

import (
	"context"
	"testing"

	"github.com/factoryforge/simcore/internal/chunk"
	"github.com/factoryforge/simcore/internal/savegame"
	"github.com/factoryforge/simcore/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopySlot(t *testing.T) {
	ctx := context.Background()
	mem := chunk.NewMemoryStore()
	src := &backend{chunks: chunk.NewFileStore(t.TempDir()), saves: savegame.Files{Dir: t.TempDir()}, close: func() {}}
	dst := &backend{chunks: mem, saves: savegame.Files{Dir: t.TempDir()}, close: func() {}}

	require.NoError(t, src.saves.Save(ctx, "a", &world.Snapshot{Seed: 3, Tick: 40}))
	for _, c := range []chunk.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: -1, Y: 2}} {
		require.NoError(t, src.chunks.Save(ctx, "a", &chunk.Record{Coord: c, Terrain: []byte{1, 2, 3, 4}}))
	}

	n, err := copySlot(ctx, src, dst, "a", "b", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	snap, err := dst.saves.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), snap.Tick)

	coords, err := mem.List(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, coords, 3)
}

func TestCopySlotWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	src := &backend{chunks: chunk.NewMemoryStore(), saves: savegame.Files{Dir: t.TempDir()}, close: func() {}}
	dst := &backend{chunks: chunk.NewMemoryStore(), saves: savegame.Files{Dir: t.TempDir()}, close: func() {}}
	_, err := copySlot(ctx, src, dst, "missing", "x", 1)
	assert.ErrorIs(t, err, savegame.ErrNoSave)
}

func TestPurgeSlotBeforeCopy(t *testing.T) {
	ctx := context.Background()
	src := &backend{chunks: chunk.NewMemoryStore(), saves: savegame.Files{Dir: t.TempDir()}, close: func() {}}
	dst := &backend{chunks: chunk.NewFileStore(t.TempDir()), saves: savegame.Files{Dir: t.TempDir()}, close: func() {}}

	require.NoError(t, src.saves.Save(ctx, "a", &world.Snapshot{Seed: 1}))
	require.NoError(t, src.chunks.Save(ctx, "a", &chunk.Record{Coord: chunk.Coord{X: 0, Y: 0}}))
	for _, c := range []chunk.Coord{{X: 5, Y: 5}, {X: 6, Y: 5}} {
		require.NoError(t, dst.chunks.Save(ctx, "a", &chunk.Record{Coord: c}))
	}
	require.NoError(t, dst.chunks.Save(ctx, "other", &chunk.Record{Coord: chunk.Coord{X: 1, Y: 1}}))

	removed, err := purgeSlot(ctx, dst.chunks, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = copySlot(ctx, src, dst, "a", "a", 1)
	require.NoError(t, err)
	coords, err := dst.chunks.List(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []chunk.Coord{{X: 0, Y: 0}}, coords)

	other, err := dst.chunks.List(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	slots, err := src.saves.Slots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, slots)
}
