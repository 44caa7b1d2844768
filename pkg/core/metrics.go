package core

// DeviceMetrics contains counters for a device's receive path.
type DeviceMetrics struct {
	// FramesReceived is the number of buffers handed to receivers.
	FramesReceived uint64

	// FramesLocal is the number of frames delivered to the device output.
	FramesLocal uint64

	// FramesRelayed is the number of frames submitted to the relay router.
	FramesRelayed uint64

	// FramesNoRoute is the number of frames carrying no destination.
	// These are keepalive-only frames and are dropped by design.
	FramesNoRoute uint64

	// FramesDropped is the number of frames dropped as malformed or
	// rejected by routing policy.
	FramesDropped uint64
}

// TunnelMetrics contains counters for a tunnel device.
type TunnelMetrics struct {
	// FramesWritten is the number of frames written to the tunnel.
	FramesWritten uint64

	// BytesWritten is the number of payload bytes written to the tunnel.
	BytesWritten uint64

	// Errors is the number of write errors encountered.
	Errors uint64
}

// TransportMetrics contains counters for the datagram transport.
type TransportMetrics struct {
	// DatagramsReceived is the number of datagrams read from the socket.
	DatagramsReceived uint64

	// DatagramsSent is the number of datagrams written to the socket.
	DatagramsSent uint64

	// BytesReceived is the number of bytes read from the socket.
	BytesReceived uint64

	// BytesSent is the number of bytes written to the socket.
	BytesSent uint64

	// UnknownDropped is the number of datagrams dropped because the
	// sender endpoint is not a configured peer.
	UnknownDropped uint64

	// KeepalivesSent is the number of keepalive frames sent.
	KeepalivesSent uint64
}

// RelayMetrics contains counters for the relay router.
type RelayMetrics struct {
	// FramesBuffered is the number of frames accepted into flow buffers.
	FramesBuffered uint64

	// FramesFlushed is the number of frames written out to peer sinks.
	FramesFlushed uint64

	// FramesDropped is the number of frames dropped due to full or
	// expired flow buffers.
	FramesDropped uint64

	// FlowsCreated is the number of relay flows created.
	FlowsCreated uint64

	// FlowsExpired is the number of relay flows torn down by the
	// inactivity timeout.
	FlowsExpired uint64
}
