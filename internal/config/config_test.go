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
	assert.Equal(t, "wss://localhost:3000/signal", cfg.Signaling.URL)
	assert.Equal(t, 10*time.Second, cfg.Signaling.RequestTimeout)
	assert.Equal(t, 5, cfg.Signaling.ReconnectAttempts)
	assert.False(t, cfg.Media.MultiShareScreen)
	assert.True(t, cfg.Diag.Enabled)
	assert.Equal(t, uint32(50000), cfg.RTC.ICEPortRangeStart)
	assert.NotEmpty(t, cfg.RTC.EnabledCodecs)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
signaling:
  url: wss://rooms.example.com/signal
  reconnect_attempts: 9
media:
  multi_share_screen: true
diag:
  enabled: false
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "wss://rooms.example.com/signal", cfg.Signaling.URL)
	assert.Equal(t, 9, cfg.Signaling.ReconnectAttempts)
	assert.True(t, cfg.Media.MultiShareScreen)
	assert.False(t, cfg.Diag.Enabled)
	// untouched keys keep their defaults
	assert.Equal(t, "8s", cfg.Signaling.ReconnectMax.String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}
