package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[engine]
tick_rate = "100ms"
max_frames = 500

[data]
spawn = ["drone", "drone", "grunt"]
`))
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Engine.TickRate)
	assert.EqualValues(t, 500, cfg.Engine.MaxFrames)
	assert.EqualValues(t, 1, cfg.Engine.HashEvery)
	assert.Equal(t, "file", cfg.Snapshot.Store)
	assert.Equal(t, "data/templates.yaml", cfg.Data.Templates)
	assert.Equal(t, []string{"drone", "drone", "grunt"}, cfg.Data.Spawn)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, src := range map[string]string{
		"store":   "[snapshot]\nstore = \"s3\"",
		"tick":    "[engine]\ntick_rate = \"0s\"",
		"workers": "[engine]\nmax_workers = -1",
		"syntax":  "[engine",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadAndPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.toml")
	require.NoError(t, os.WriteFile(path, []byte("[snapshot]\nstore = \"postgres\"\nlabel = \"staging\"\n"), 0o644))

	t.Setenv("FORGE_CONFIG", path)
	require.Equal(t, path, Path())
	cfg, err := Load(Path())
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Snapshot.Store)
	assert.Equal(t, "staging", cfg.Snapshot.Label)

	t.Setenv("FORGE_CONFIG", "")
	assert.Equal(t, DefaultPath, Path())

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "read config")
}
