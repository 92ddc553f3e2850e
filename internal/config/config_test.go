package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval)
	assert.Greater(t, cfg.DeadAfter, cfg.SuspectAfter)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_port: "9999"
max_attempts: 2
suspect_after: 10s
dead_after: 1m
heartbeat_interval: 3s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.SuspectAfter)
	assert.Equal(t, time.Minute, cfg.DeadAfter)
	// Unset keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.VisibilityTimeout)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_port: \"9999\"\n"), 0o644))
	t.Setenv("HTTP_PORT", "7777")
	t.Setenv("MAX_ATTEMPTS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.HTTPPort)
	assert.Equal(t, 9, cfg.MaxAttempts)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	// dead_after must exceed suspect_after.
	require.NoError(t, os.WriteFile(path, []byte("suspect_after: 30s\ndead_after: 10s\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "dead_after")

	// heartbeat_interval must undercut suspect_after.
	require.NoError(t, os.WriteFile(path, []byte("heartbeat_interval: 10s\nsuspect_after: 5s\ndead_after: 20s\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "heartbeat_interval")

	require.NoError(t, os.WriteFile(path, []byte("max_attempts: -1\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "max_attempts")
}
