package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-means-defaults-skip.toml"))
	// A named file that does not exist is an error; load with discovery
	// instead from an empty directory.
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrent)
	assert.InDelta(t, 0.10, cfg.Pipeline.GoalSampleRate, 1e-9)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "0 3 * * *", cfg.Learning.Schedule)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inboxtriage.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9001\n\n[logging]\nlevel = \"debug\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Scheduler.MaxRetries, "untouched keys keep defaults")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inboxtriage.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9001\n"), 0644))
	t.Setenv("INBOXTRIAGE_SERVER_PORT", "9002")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9002, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	good := func() *Config {
		cfg := &Config{}
		cfg.Server.Port = 8080
		cfg.Pipeline.GoalSampleRate = 0.1
		cfg.Logging.Level = "info"
		return cfg
	}

	assert.NoError(t, Validate(good()))

	cfg := good()
	cfg.Server.Port = 0
	assert.ErrorContains(t, Validate(cfg), "port")

	cfg = good()
	cfg.Pipeline.GoalSampleRate = 1.5
	assert.ErrorContains(t, Validate(cfg), "goal_sample_rate")

	cfg = good()
	cfg.Logging.Level = "loud"
	assert.ErrorContains(t, Validate(cfg), "logging level")
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inboxtriage.toml")
	require.NoError(t, Init(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.ErrorContains(t, Init(path), "already exists")
}
