// Package config provides configuration handling for the meshvpn node.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/logging"
	"gopkg.in/yaml.v3"
)

// Config represents the complete node configuration.
type Config struct {
	// Device contains the receive device configuration.
	Device core.DeviceConfig `json:"device" yaml:"device"`

	// Relay contains the relay flow-control configuration.
	Relay core.RelayConfig `json:"relay" yaml:"relay"`

	// Transport contains the datagram transport configuration.
	Transport core.TransportConfig `json:"transport" yaml:"transport"`

	// Tunnel contains the tunnel interface configuration.
	Tunnel core.TunnelConfig `json:"tunnel" yaml:"tunnel"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path. Empty means stdout only.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Device: core.DeviceConfig{
			MTU: 1420,
		},
		Relay: core.RelayConfig{
			FlowBufferSize:        64,
			FlowInactivitySeconds: 60,
		},
		Transport: core.TransportConfig{
			ListenAddr:       "0.0.0.0:8100",
			KeepaliveSeconds: 10,
			Peers:            []core.PeerConfig{},
		},
		Tunnel: core.TunnelConfig{
			Name: "mesh0",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch {
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

// LoadFromEnv loads configuration overrides from environment variables.
func LoadFromEnv(config *Config) {
	if val := os.Getenv("MESHVPN_DEVICE_MTU"); val != "" {
		if mtu, err := strconv.Atoi(val); err == nil {
			config.Device.MTU = mtu
		}
	}
	if val := os.Getenv("MESHVPN_SELF_ID"); val != "" {
		if id, err := strconv.ParseUint(val, 10, 16); err == nil {
			v := uint16(id)
			config.Device.SelfID = &v
		}
	}
	if val := os.Getenv("MESHVPN_LISTEN_ADDR"); val != "" {
		config.Transport.ListenAddr = val
	}
	if val := os.Getenv("MESHVPN_KEEPALIVE_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Transport.KeepaliveSeconds = n
		}
	}
	if val := os.Getenv("MESHVPN_TUNNEL_NAME"); val != "" {
		config.Tunnel.Name = val
	}
	if val := os.Getenv("MESHVPN_TUNNEL_MOCK"); val != "" {
		config.Tunnel.Mock = val == "true" || val == "1"
	}
	if val := os.Getenv("MESHVPN_RELAY_BUFFER_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Relay.FlowBufferSize = n
		}
	}
	if val := os.Getenv("MESHVPN_RELAY_INACTIVITY_SECONDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Relay.FlowInactivitySeconds = n
		}
	}
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Device.MTU <= 0 {
		return fmt.Errorf("invalid device MTU: %d", c.Device.MTU)
	}
	if c.Relay.FlowBufferSize <= 0 {
		return fmt.Errorf("invalid relay flow buffer size: %d", c.Relay.FlowBufferSize)
	}
	if c.Relay.FlowInactivitySeconds < 0 {
		return fmt.Errorf("invalid relay flow inactivity: %d", c.Relay.FlowInactivitySeconds)
	}
	if _, _, err := net.SplitHostPort(c.Transport.ListenAddr); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Transport.ListenAddr, err)
	}
	if c.Tunnel.Name == "" {
		return fmt.Errorf("tunnel name cannot be empty")
	}

	seen := make(map[uint16]bool)
	for _, p := range c.Transport.Peers {
		if seen[p.ID] {
			return fmt.Errorf("duplicate peer ID: %d", p.ID)
		}
		seen[p.ID] = true
		if c.Device.SelfID != nil && p.ID == *c.Device.SelfID {
			return fmt.Errorf("peer ID %d collides with own peer ID", p.ID)
		}
		if _, err := net.ResolveUDPAddr("udp", p.Endpoint); err != nil {
			return fmt.Errorf("peer %d: invalid endpoint %q: %w", p.ID, p.Endpoint, err)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	var level logging.Level
	switch c.Logging.Level {
	case "debug":
		level = logging.DebugLevel
	case "info":
		level = logging.InfoLevel
	case "warn":
		level = logging.WarnLevel
	case "error":
		level = logging.ErrorLevel
	default:
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	if c.Logging.File != "" {
		dir, file := "./", c.Logging.File
		if i := strings.LastIndex(c.Logging.File, "/"); i != -1 {
			dir, file = c.Logging.File[:i], c.Logging.File[i+1:]
		}
		if err := logging.EnableFileLogging(dir, file, c.Logging.MaxSize, c.Logging.MaxBackups, c.Logging.MaxAge); err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}
