package config

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		SourceDir:  t.TempDir(),
		ReplicaDir: filepath.Join(t.TempDir(), "replica"),
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		cfg := validConfig(t)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, DefaultInterval, cfg.Interval)
		assert.Equal(t, time.Duration(DefaultInterval)*time.Second, cfg.SyncInterval())
		assert.Equal(t, runtime.GOMAXPROCS(0), cfg.MaxWorkers)
		assert.Equal(t, SymlinkSkip, cfg.SymlinkPolicy)
		assert.NotEmpty(t, cfg.LogFile)
		assert.True(t, filepath.IsAbs(cfg.SourceDir))
		assert.True(t, filepath.IsAbs(cfg.ReplicaDir))
	})

	t.Run("missing source dir", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SourceDir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("nonexistent source dir", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SourceDir = filepath.Join(t.TempDir(), "absent")
		assert.Error(t, cfg.Validate())
	})

	t.Run("source equals replica", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.ReplicaDir = cfg.SourceDir
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative interval", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Interval = -5
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative workers", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.MaxWorkers = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("unsupported symlink policy", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.SymlinkPolicy = "follow"
		assert.Error(t, cfg.Validate())
	})
}

func TestConfigSaveLoad(t *testing.T) {
	cfg := validConfig(t)
	cfg.Interval = 12
	cfg.MaxWorkers = 3
	cfg.Watch = true
	require.NoError(t, cfg.Validate())

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.SourceDir, loaded.SourceDir)
	assert.Equal(t, cfg.ReplicaDir, loaded.ReplicaDir)
	assert.Equal(t, 12, loaded.Interval)
	assert.Equal(t, 3, loaded.MaxWorkers)
	assert.True(t, loaded.Watch)
	assert.Equal(t, path, loaded.Path)
}

func TestConfigLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
