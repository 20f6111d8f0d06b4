package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7710", cfg.IPC.Addr)
	assert.Equal(t, 54*time.Second, cfg.IPC.PingPeriod)
	assert.Equal(t, "voicemedia/1", cfg.Transport.ALPN)
	assert.Equal(t, 10*time.Second, cfg.Transport.HandshakeTimeout)
	assert.Equal(t, uint16(1100), cfg.Transport.DatagramMTU)
	assert.Equal(t, 30, cfg.Media.CameraFPS)
	assert.Equal(t, 15, cfg.Media.ScreenFPS)
	assert.Equal(t, 96000, cfg.Media.VoiceBitrate)
	assert.Equal(t, 192000, cfg.Media.StreamBitrate)
	assert.Equal(t, "@DEFAULT_MONITOR@", cfg.Capture.MonitorDevice)
	assert.Equal(t, 2, cfg.Capture.Channels)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ipc:
  addr: 127.0.0.1:9000
transport:
  cert_fingerprint: abcd
  handshake_timeout: 3s
media:
  camera_fps: 24
`), 0o600))
	t.Setenv("VOICEMEDIA_LOG_LEVEL", "warn")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.IPC.Addr)
	assert.Equal(t, "abcd", cfg.Transport.CertFingerprint)
	assert.Equal(t, 3*time.Second, cfg.Transport.HandshakeTimeout)
	assert.Equal(t, 24, cfg.Media.CameraFPS)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestFileNameFollowsConfigEnv(t *testing.T) {
	t.Setenv("CONFIG_ENV", "prod")
	assert.Equal(t, "config/config.prod.yaml", FileName())
}
