package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero MTU", func(c *Config) { c.Device.MTU = 0 }},
		{"zero relay buffer", func(c *Config) { c.Relay.FlowBufferSize = 0 }},
		{"negative inactivity", func(c *Config) { c.Relay.FlowInactivitySeconds = -1 }},
		{"bad listen address", func(c *Config) { c.Transport.ListenAddr = "nonsense" }},
		{"empty tunnel name", func(c *Config) { c.Tunnel.Name = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"duplicate peer IDs", func(c *Config) {
			c.Transport.Peers = []core.PeerConfig{
				{ID: 1, Endpoint: "10.0.0.1:8100"},
				{ID: 1, Endpoint: "10.0.0.2:8100"},
			}
		}},
		{"peer collides with self", func(c *Config) {
			self := uint16(5)
			c.Device.SelfID = &self
			c.Transport.Peers = []core.PeerConfig{{ID: 5, Endpoint: "10.0.0.1:8100"}}
		}},
		{"bad peer endpoint", func(c *Config) {
			c.Transport.Peers = []core.PeerConfig{{ID: 1, Endpoint: "not-an-endpoint"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
device:
  mtu: 1380
  selfID: 7
relay:
  flowBufferSize: 16
  flowInactivitySeconds: 30
transport:
  listenAddr: "127.0.0.1:9000"
  keepaliveSeconds: 5
  peers:
    - id: 2
      endpoint: "192.0.2.10:9000"
      relayCapable: true
    - id: 3
      endpoint: "192.0.2.11:9000"
tunnel:
  name: mesh1
  mock: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1380, cfg.Device.MTU)
	require.NotNil(t, cfg.Device.SelfID)
	assert.Equal(t, uint16(7), *cfg.Device.SelfID)
	assert.Equal(t, 16, cfg.Relay.FlowBufferSize)
	assert.Equal(t, "127.0.0.1:9000", cfg.Transport.ListenAddr)
	require.Len(t, cfg.Transport.Peers, 2)
	assert.True(t, cfg.Transport.Peers[0].RelayCapable)
	assert.False(t, cfg.Transport.Peers[1].RelayCapable)
	assert.Equal(t, "mesh1", cfg.Tunnel.Name)
	assert.True(t, cfg.Tunnel.Mock)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Defaults survive for fields the file omits.
	assert.Equal(t, 10, cfg.Logging.MaxSize)
}

func TestLoadFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data := `{"device": {"mtu": 1200}, "tunnel": {"name": "mesh2"}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg := DefaultConfig()
	require.NoError(t, LoadFromFile(path, cfg))
	assert.Equal(t, 1200, cfg.Device.MTU)
	assert.Equal(t, "mesh2", cfg.Tunnel.Name)
}

func TestLoadFromFileUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0644))

	cfg := DefaultConfig()
	assert.Error(t, LoadFromFile(path, cfg))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MESHVPN_DEVICE_MTU", "900")
	t.Setenv("MESHVPN_SELF_ID", "12")
	t.Setenv("MESHVPN_LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("MESHVPN_TUNNEL_MOCK", "1")
	t.Setenv("LOGGING_LEVEL", "warn")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, 900, cfg.Device.MTU)
	require.NotNil(t, cfg.Device.SelfID)
	assert.Equal(t, uint16(12), *cfg.Device.SelfID)
	assert.Equal(t, "127.0.0.1:7000", cfg.Transport.ListenAddr)
	assert.True(t, cfg.Tunnel.Mock)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
