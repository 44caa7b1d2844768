// Package tun implements the local tunnel interface frames are
// delivered to. The native implementation wraps a kernel TUN device via
// wireguard-go; MockTunnel is an in-memory stand-in for tests and
// unprivileged environments.
package tun

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/logging"
	wgtun "golang.zx2c4.com/wireguard/tun"
)

// writeOffset leaves room in front of each packet for the virtio-net
// header the kernel TUN path may require.
const writeOffset = 16

// FrameHandler receives frames read from the tunnel interface.
type FrameHandler interface {
	HandleFrame(payload []byte)
}

// Tunnel wraps a kernel TUN device as a core.TunnelDevice.
type Tunnel struct {
	name string
	mtu  int

	mu      sync.Mutex
	dev     wgtun.Device
	handler FrameHandler
	running bool
	wg      sync.WaitGroup

	metrics core.TunnelMetrics
}

var _ core.TunnelDevice = (*Tunnel)(nil)

// NewTunnel creates a tunnel device wrapper. The kernel device is opened
// on Start.
func NewTunnel(name string, mtu int) *Tunnel {
	return &Tunnel{name: name, mtu: mtu}
}

// Name returns the name of the tunnel interface.
func (t *Tunnel) Name() string {
	return t.name
}

// MTU returns the Maximum Transmission Unit of the tunnel interface.
func (t *Tunnel) MTU() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev.MTU()
	}
	return t.mtu, nil
}

// SetFrameHandler sets the callback for frames read from the tunnel.
// Must be called before Start.
func (t *Tunnel) SetFrameHandler(handler FrameHandler) {
	t.handler = handler
}

// Start opens the kernel TUN device and starts the read loop.
func (t *Tunnel) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("tunnel device already running")
	}
	dev, err := wgtun.CreateTUN(t.name, t.mtu)
	if err != nil {
		return fmt.Errorf("failed to create TUN device: %w", err)
	}
	if name, err := dev.Name(); err == nil {
		t.name = name
	}
	t.dev = dev
	t.running = true

	t.wg.Add(1)
	go t.readLoop(dev)

	logging.Infof("Tunnel device started: %s", t.name)
	return nil
}

// Stop closes the kernel TUN device and waits for the read loop.
func (t *Tunnel) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	dev := t.dev
	t.dev = nil
	t.running = false
	t.mu.Unlock()

	err := dev.Close()
	t.wg.Wait()

	logging.Infof("Tunnel device stopped: %s", t.name)
	return err
}

// WriteFrame writes one frame payload to the tunnel interface.
func (t *Tunnel) WriteFrame(payload []byte) error {
	t.mu.Lock()
	dev := t.dev
	t.mu.Unlock()
	if dev == nil {
		atomic.AddUint64(&t.metrics.Errors, 1)
		return fmt.Errorf("tunnel device not running")
	}

	buf := make([]byte, writeOffset+len(payload))
	copy(buf[writeOffset:], payload)
	if _, err := dev.Write([][]byte{buf}, writeOffset); err != nil {
		atomic.AddUint64(&t.metrics.Errors, 1)
		return fmt.Errorf("failed to write to TUN device: %w", err)
	}

	atomic.AddUint64(&t.metrics.FramesWritten, 1)
	atomic.AddUint64(&t.metrics.BytesWritten, uint64(len(payload)))
	return nil
}

// Metrics returns metrics for the tunnel device.
func (t *Tunnel) Metrics() core.TunnelMetrics {
	return core.TunnelMetrics{
		FramesWritten: atomic.LoadUint64(&t.metrics.FramesWritten),
		BytesWritten:  atomic.LoadUint64(&t.metrics.BytesWritten),
		Errors:        atomic.LoadUint64(&t.metrics.Errors),
	}
}

// readLoop reads frames from the kernel device and hands them to the
// frame handler. Outbound routing is the send path's concern; with no
// handler set, locally originated traffic is dropped.
func (t *Tunnel) readLoop(dev wgtun.Device) {
	defer t.wg.Done()

	batch := dev.BatchSize()
	bufs := make([][]byte, batch)
	sizes := make([]int, batch)
	for i := range bufs {
		bufs[i] = make([]byte, writeOffset+t.mtu)
	}

	for {
		n, err := dev.Read(bufs, sizes, writeOffset)
		if err != nil {
			// Closed on Stop; anything else is logged and ends the loop.
			t.mu.Lock()
			running := t.running
			t.mu.Unlock()
			if running {
				logging.Errorf("Tunnel device read: %v", err)
			}
			return
		}
		for i := 0; i < n; i++ {
			if t.handler != nil {
				t.handler.HandleFrame(bufs[i][writeOffset : writeOffset+sizes[i]])
			}
		}
	}
}
