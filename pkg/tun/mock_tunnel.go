package tun

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/logging"
)

// MockTunnel is an in-memory core.TunnelDevice for testing and for
// environments without /dev/net/tun. Written frames are retained for
// inspection.
type MockTunnel struct {
	name string
	mtu  int

	mu            sync.Mutex
	running       bool
	handler       FrameHandler
	framesWritten [][]byte

	metrics core.TunnelMetrics
}

var _ core.TunnelDevice = (*MockTunnel)(nil)

// NewMockTunnel creates a mock tunnel device.
func NewMockTunnel(name string, mtu int) *MockTunnel {
	return &MockTunnel{name: name, mtu: mtu}
}

// Name returns the name of the tunnel interface.
func (m *MockTunnel) Name() string {
	return m.name
}

// MTU returns the Maximum Transmission Unit of the tunnel interface.
func (m *MockTunnel) MTU() (int, error) {
	return m.mtu, nil
}

// SetFrameHandler sets the callback for simulated inbound frames.
func (m *MockTunnel) SetFrameHandler(handler FrameHandler) {
	m.handler = handler
}

// Start starts the mock tunnel device.
func (m *MockTunnel) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("tunnel device already running")
	}
	m.running = true
	logging.Infof("Mock tunnel device started: %s", m.name)
	return nil
}

// Stop stops the mock tunnel device.
func (m *MockTunnel) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// WriteFrame records one frame payload.
func (m *MockTunnel) WriteFrame(payload []byte) error {
	data := make([]byte, len(payload))
	copy(data, payload)

	m.mu.Lock()
	m.framesWritten = append(m.framesWritten, data)
	m.mu.Unlock()

	atomic.AddUint64(&m.metrics.FramesWritten, 1)
	atomic.AddUint64(&m.metrics.BytesWritten, uint64(len(payload)))
	return nil
}

// FramesWritten returns copies of the frames written so far.
func (m *MockTunnel) FramesWritten() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.framesWritten))
	copy(out, m.framesWritten)
	return out
}

// SimulateFrameRead feeds one frame to the frame handler as if it had
// been read from the kernel device.
func (m *MockTunnel) SimulateFrameRead(payload []byte) {
	if m.handler != nil {
		m.handler.HandleFrame(payload)
	}
}

// Metrics returns metrics for the tunnel device.
func (m *MockTunnel) Metrics() core.TunnelMetrics {
	return core.TunnelMetrics{
		FramesWritten: atomic.LoadUint64(&m.metrics.FramesWritten),
		BytesWritten:  atomic.LoadUint64(&m.metrics.BytesWritten),
		Errors:        atomic.LoadUint64(&m.metrics.Errors),
	}
}
