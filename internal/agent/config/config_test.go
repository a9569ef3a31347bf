package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
api:
  base_url: http://server:8080
  encoding: CBOR
device:
  device_id: door-1
reader:
  poll_interval_ms: 100
offline:
  database_path: /var/lib/agent/buffer.db
  sync_interval_seconds: 2
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MergesDefaultsAndEnvKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "  k-123 ")

	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "door-1", cfg.Device.DeviceID)
	assert.Equal(t, "k-123", cfg.Device.APIKey)
	assert.Equal(t, EncodingCBOR, cfg.API.Encoding)
	assert.Equal(t, TransportHTTP, cfg.API.Transport)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 2*time.Second, cfg.SyncInterval())
	assert.Equal(t, 50, cfg.Offline.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.MaxBackoff())
	assert.Equal(t, 30*24*time.Hour, cfg.Retention())
	assert.Equal(t, time.Minute, cfg.HeartbeatInterval())
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	_, err := Load(writeFile(t, sample))
	require.Error(t, err)
	assert.Contains(t, err.Error(), APIKeyEnv)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("device:\n  device_idd: door-1\n"))
	require.Error(t, err)
}

func TestParse_APIKeyIgnoredInFile(t *testing.T) {
	_, err := Parse([]byte("device:\n  api_key: leaked\n"))
	require.Error(t, err, "api_key must not be accepted from the file")
}

func TestValidate_Transport(t *testing.T) {
	cfg := Default()
	cfg.Device.DeviceID = "door-1"
	cfg.Device.APIKey = "k"

	cfg.API.Transport = TransportGRPC
	assert.ErrorContains(t, cfg.Validate(), "grpc_addr")

	cfg.API.GRPCAddr = "server:9090"
	assert.NoError(t, cfg.Validate())

	cfg.API.Transport = "carrier-pigeon"
	assert.ErrorContains(t, cfg.Validate(), "transport")
}

func TestParse_EmptyFileKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
