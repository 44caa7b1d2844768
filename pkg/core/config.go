package core

// DeviceConfig contains configuration for the receive device.
type DeviceConfig struct {
	// MTU is the Maximum Transmission Unit of the tunnel interface.
	// Frame payloads larger than this are dropped.
	MTU int `json:"mtu" yaml:"mtu"`

	// SelfID is this node's own peer ID. When unset the device never
	// treats a frame as locally destined.
	SelfID *uint16 `json:"self_id" yaml:"selfID"`
}

// RelayConfig contains flow-control parameters forwarded to the relay
// router on every submission.
type RelayConfig struct {
	// FlowBufferSize is the maximum number of frames buffered per
	// source/destination peer pair. Must be positive.
	FlowBufferSize int `json:"flow_buffer_size" yaml:"flowBufferSize"`

	// FlowInactivitySeconds is the number of seconds an idle relay flow
	// keeps its buffer before it is torn down.
	FlowInactivitySeconds int `json:"flow_inactivity_seconds" yaml:"flowInactivitySeconds"`
}

// TransportConfig contains configuration for the datagram transport.
type TransportConfig struct {
	// ListenAddr is the UDP address to listen on, e.g. "0.0.0.0:8100".
	ListenAddr string `json:"listen_addr" yaml:"listenAddr"`

	// KeepaliveSeconds is the interval between keepalive frames sent to
	// each peer. Zero disables keepalives.
	KeepaliveSeconds int `json:"keepalive_seconds" yaml:"keepaliveSeconds"`

	// Peers is the static peer table.
	Peers []PeerConfig `json:"peers" yaml:"peers"`
}

// PeerConfig describes one configured peer.
type PeerConfig struct {
	// ID is the peer's ID, unique within the device.
	ID uint16 `json:"id" yaml:"id"`

	// Endpoint is the peer's UDP endpoint, e.g. "203.0.113.7:8100".
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// RelayCapable permits the peer to relay frames through this node.
	RelayCapable bool `json:"relay_capable" yaml:"relayCapable"`
}

// TunnelConfig contains configuration for the local tunnel interface.
type TunnelConfig struct {
	// Name is the name of the tunnel interface.
	Name string `json:"name" yaml:"name"`

	// Mock replaces the kernel tunnel with an in-memory one. Useful for
	// tests and containers without /dev/net/tun.
	Mock bool `json:"mock" yaml:"mock"`
}
