package core

// FrameOutput receives locally-destined frame payloads from a device.
// The payload slice is only valid for the duration of the call.
type FrameOutput interface {
	// WriteFrame delivers one frame payload (header already stripped).
	WriteFrame(payload []byte) error
}

// FrameOutputFunc adapts a plain function to the FrameOutput interface.
type FrameOutputFunc func(payload []byte) error

// WriteFrame implements FrameOutput.
func (f FrameOutputFunc) WriteFrame(payload []byte) error {
	return f(payload)
}

// TunnelDevice represents the local tunnel interface a device delivers
// frames to.
type TunnelDevice interface {
	// Name returns the name of the tunnel interface.
	Name() string

	// MTU returns the Maximum Transmission Unit of the tunnel interface.
	MTU() (int, error)

	// WriteFrame writes one frame payload to the tunnel interface.
	WriteFrame(payload []byte) error

	// Start starts the tunnel device.
	Start() error

	// Stop stops the tunnel device.
	Stop() error

	// Metrics returns metrics for the tunnel device.
	Metrics() TunnelMetrics
}
