package chunk

import (
	"context"
	"testing"

	"github.com/factoryforge/simcore/internal/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordOfFloorDivides(t *testing.T) {
	cases := []struct {
		tile component.Tile
		want Coord
	}{
		{component.Tile{X: 0, Y: 0}, Coord{0, 0}},
		{component.Tile{X: 31, Y: 31}, Coord{0, 0}},
		{component.Tile{X: 32, Y: 0}, Coord{1, 0}},
		{component.Tile{X: -1, Y: 0}, Coord{-1, 0}},
		{component.Tile{X: -32, Y: -33}, Coord{-1, -2}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CoordOf(tc.tile), "tile %v", tc.tile)
	}
}

func TestChunkTileAccess(t *testing.T) {
	ch := newChunk(Coord{-1, 0})
	tile := component.Tile{X: -1, Y: 5}
	require.True(t, ch.SetTile(tile, Tile{Terrain: TerrainRock, Resource: ResourceCoal, Amount: 10}))
	got, ok := ch.TileAt(tile)
	require.True(t, ok)
	assert.Equal(t, TerrainRock, got.Terrain)
	assert.True(t, ch.Dirty())

	_, ok = ch.TileAt(component.Tile{X: 0, Y: 5})
	assert.False(t, ok, "tile outside chunk")
	assert.False(t, ch.SetTile(component.Tile{X: 0, Y: 5}, Tile{}))
}

func TestPackTilesRoundTrip(t *testing.T) {
	in := []Tile{{1, 2, 300}, {4, 0, 0}, {0, 5, 65535}}
	out := make([]Tile, len(in))
	require.NoError(t, unpackTiles(packTiles(in), out))
	assert.Equal(t, in, out)
	assert.Error(t, unpackTiles([]byte{1, 2}, out))
}

func TestNoiseGeneratorIsDeterministic(t *testing.T) {
	g := NewNoiseGenerator()
	var a, b, c [area]Tile
	require.NoError(t, g.Generate(42, Coord{3, -7}, a[:]))
	require.NoError(t, g.Generate(42, Coord{3, -7}, b[:]))
	require.NoError(t, g.Generate(43, Coord{3, -7}, c[:]))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNoiseGeneratorPlacesDeposits(t *testing.T) {
	g := NewNoiseGenerator()
	deposits := 0
	var tiles [area]Tile
	for x := int32(0); x < 64; x++ {
		require.NoError(t, g.Generate(1, Coord{x, 0}, tiles[:]))
		for _, tl := range tiles {
			if tl.Resource != ResourceNone {
				assert.Greater(t, tl.Amount, uint16(0))
				deposits++
				break
			}
		}
	}
	assert.Greater(t, deposits, 0)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	_, err := s.Load(ctx, "slot1", Coord{1, 2})
	assert.ErrorIs(t, err, ErrNotFound)

	rec := &Record{Coord: Coord{1, 2}, Terrain: []byte{1, 2, 3, 4}, Entities: []uint64{7, 9}}
	require.NoError(t, s.Save(ctx, "slot1", rec))

	got, err := s.Load(ctx, "slot1", Coord{1, 2})
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.Load(ctx, "slot2", Coord{1, 2})
	assert.ErrorIs(t, err, ErrNotFound, "slots are separate namespaces")

	require.NoError(t, s.Delete(ctx, "slot1", Coord{1, 2}))
	require.NoError(t, s.Delete(ctx, "slot1", Coord{1, 2}))
	_, err = s.Load(ctx, "slot1", Coord{1, 2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoresList(t *testing.T) {
	ctx := context.Background()
	for name, s := range map[string]interface {
		Store
		Lister
	}{
		"file":   NewFileStore(t.TempDir()),
		"memory": NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := s.List(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, got)

			for _, c := range []Coord{{3, 1}, {-2, 1}, {0, -4}} {
				require.NoError(t, s.Save(ctx, "a", &Record{Coord: c, Terrain: []byte{0, 0, 0, 0}}))
			}
			require.NoError(t, s.Save(ctx, "b", &Record{Coord: Coord{9, 9}}))

			got, err = s.List(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []Coord{{0, -4}, {-2, 1}, {3, 1}}, got)
		})
	}
}
