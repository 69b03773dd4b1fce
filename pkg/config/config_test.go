package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLOCK_BASE_DIR", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.HeartbeatPeriod)
	assert.Equal(t, 120*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, 60, cfg.ReaderMaxRetries)
	assert.Equal(t, time.Second, cfg.ReaderBackoff)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.Timeout)
	assert.Zero(t, cfg.MaxJob)
}

func TestLoadRequiresBaseDir(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FLOCK_BASE_DIR", "/mnt/shared/run1")
	t.Setenv("FLOCK_NODE_ID", "gpu-box")
	t.Setenv("FLOCK_TIMEOUT", "30s")
	t.Setenv("FLOCK_MAX_JOB", "5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/mnt/shared/run1", cfg.BaseDir)
	assert.Equal(t, "gpu-box", cfg.NodeID)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5, cfg.MaxJob)
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := &Config{BaseDir: "/tmp/run"}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, 120*time.Second, cfg.HeartbeatTimeout)
}
