package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "project.json", cfg.Location)
	assert.Equal(t, "w", cfg.Mode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Storage.Scheme)
	assert.Equal(t, "localhost:6379", cfg.Storage.Redis.Addr)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lazyscribe.yaml")
	content := `
location: memory://team/project.json
mode: w+
author: ann
log:
  level: debug
storage:
  scheme: memory
  redis:
    addr: redis.internal:6379
    key_prefix: "team:"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "memory://team/project.json", cfg.Location)
	assert.Equal(t, "w+", cfg.Mode)
	assert.Equal(t, "ann", cfg.Author)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Storage.Scheme)
	assert.Equal(t, "redis.internal:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, "team:", cfg.Storage.Redis.KeyPrefix)
	assert.Equal(t, "json", cfg.Log.Format, "unset fields keep defaults")
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("does-not-exist.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "project.json", cfg.Location)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lazyscribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: w\n"), 0o644))

	t.Setenv("LAZYSCRIBE_MODE", "r")
	t.Setenv("LAZYSCRIBE_AUTHOR", "bob")
	t.Setenv("LAZYSCRIBE_LOG_LEVEL", "error")
	t.Setenv("LAZYSCRIBE_STORAGE_REDIS_DB", "3")
	t.Setenv("LAZYSCRIBE_LOG_OUTPUT_PATHS", "stdout, stderr")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "r", cfg.Mode)
	assert.Equal(t, "bob", cfg.Author)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
	assert.Equal(t, []string{"stdout", "stderr"}, cfg.Log.OutputPaths)
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_MODE", "a")
	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.Mode)
}

func TestValidators(t *testing.T) {
	loader := NewLoader().WithValidator(func(cfg *Config) error {
		if cfg.Mode == "w" {
			return assert.AnError
		}
		return nil
	})
	_, err := loader.Load()
	assert.Error(t, err)
}

func TestLoggerConstruction(t *testing.T) {
	cfg := DefaultConfig()
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Log.Level = "verbose"
	_, err = cfg.Logger()
	assert.Error(t, err)
}

func TestBackendConstruction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Scheme = "memory"
	backend, err := cfg.Backend()
	require.NoError(t, err)
	assert.Equal(t, "memory", backend.Scheme())

	cfg.Storage.Scheme = "s3"
	_, err = cfg.Backend()
	assert.Error(t, err)
}
