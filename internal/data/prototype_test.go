package data

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
prototypes:
  - name: transport-belt
    kind: belt
    speed: 1.875
  - name: splitter
    kind: splitter
    speed: 1.875
    size: {w: 2, h: 1}
  - name: pipe
    kind: pipe
    capacity: 100
  - name: offshore-pump
    kind: pump
    capacity: 100
    rate: 1200
    fluid: water
`

func TestParsePrototypes(t *testing.T) {
	tbl, err := ParsePrototypes([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Count())
	assert.Equal(t, []string{"offshore-pump", "pipe", "splitter", "transport-belt"}, tbl.Names())

	belt, err := tbl.Get("transport-belt")
	require.NoError(t, err)
	assert.Equal(t, KindBelt, belt.Kind)
	assert.Equal(t, Size{W: 1, H: 1}, belt.Size)
	assert.Equal(t, "transport-belt", belt.Sprite)

	sp, _ := tbl.Get("splitter")
	assert.Equal(t, Size{W: 2, H: 1}, sp.Size)

	pump, _ := tbl.Get("offshore-pump")
	assert.True(t, pump.Kind.IsFluid())
	assert.Equal(t, "water", pump.Fluid)
}

func TestUnknownPrototype(t *testing.T) {
	tbl, err := ParsePrototypes([]byte(sample))
	require.NoError(t, err)
	_, err = tbl.Get("assembler")
	assert.ErrorIs(t, err, ErrUnknownPrototype)
}

func TestParsePrototypesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad kind":     "prototypes: [{name: x, kind: inserter}]",
		"no speed":     "prototypes: [{name: x, kind: belt}]",
		"no capacity":  "prototypes: [{name: x, kind: tank}]",
		"pump fluid":   "prototypes: [{name: x, kind: pump, capacity: 10}]",
		"duplicate":    "prototypes: [{name: x, kind: belt, speed: 1}, {name: x, kind: belt, speed: 2}]",
		"missing name": "prototypes: [{kind: belt, speed: 1}]",
		"not yaml":     "prototypes: [",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePrototypes([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadPrototypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prototypes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	tbl, err := LoadPrototypes(path)
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Count())

	_, err = LoadPrototypes(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
