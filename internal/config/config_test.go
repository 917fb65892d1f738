package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second/60, cfg.Simulation.TickRate)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "default", cfg.Storage.Slot)
	assert.Equal(t, int32(2), cfg.Chunks.LoadRadius)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadOverridesDefaults(t *testing.T) {
	src := `
[simulation]
tick_rate = "50ms"
seed = 42
strict = true

[chunks]
load_radius = 3
evict_radius = 5

[storage]
backend = "postgres"
slot = "alpha"

[database]
conn_max_lifetime = "5m"
`
	path := filepath.Join(t.TempDir(), "sim.toml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Simulation.TickRate)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	assert.True(t, cfg.Simulation.Strict)
	assert.Equal(t, int32(3), cfg.Chunks.LoadRadius)
	assert.Equal(t, int32(5), cfg.Chunks.EvictRadius)
	assert.Equal(t, 4, cfg.Chunks.SaveWorkers, "untouched keys keep defaults")
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "alpha", cfg.Storage.Slot)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"evict below load": "[chunks]\nload_radius = 4\nevict_radius = 2\n",
		"bad backend":      "[storage]\nbackend = \"s3\"\n",
		"empty slot":       "[storage]\nslot = \"\"\n",
		"zero tick":        "[simulation]\ntick_rate = \"0s\"\n",
		"syntax":           "[simulation\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
