// Package receive implements the inbound data plane of a device: parsing
// frames arriving from peers and deciding, per frame, between local
// delivery, relay to another peer, and drop.
package receive

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/dataproto"
)

// Device is the receive-side state of one tunnel interface: the peer
// registry, the relay router handle, and the output for locally-destined
// frames.
//
// Registry mutation (peer add/remove, sink attach/detach) may happen on a
// different goroutine than frame processing; the device serializes both
// against the lookups done during routing.
type Device struct {
	deviceMTU int
	packetMTU int
	output    core.FrameOutput
	router    core.RelayRouter

	relayBufferSize int
	relayInactivity time.Duration

	mu         sync.Mutex
	selfID     core.PeerID
	haveSelfID bool
	peers      map[core.PeerID]*Peer
	closed     bool

	metrics core.DeviceMetrics
}

// NewDevice creates a device. deviceMTU is the tunnel MTU; the device
// accepts inbound buffers up to deviceMTU plus the frame overhead.
// relayBufferSize and relayInactivity are forwarded to the relay router
// on every relay submission.
func NewDevice(deviceMTU int, output core.FrameOutput, router core.RelayRouter, relayBufferSize int, relayInactivity time.Duration) (*Device, error) {
	if deviceMTU < 0 {
		return nil, fmt.Errorf("invalid device MTU: %d", deviceMTU)
	}
	if output == nil {
		return nil, fmt.Errorf("no frame output")
	}
	if router == nil {
		return nil, fmt.Errorf("no relay router")
	}
	if relayBufferSize <= 0 {
		return nil, fmt.Errorf("invalid relay flow buffer size: %d", relayBufferSize)
	}
	return &Device{
		deviceMTU:       deviceMTU,
		packetMTU:       deviceMTU + dataproto.MaxOverhead,
		output:          output,
		router:          router,
		relayBufferSize: relayBufferSize,
		relayInactivity: relayInactivity,
		peers:           make(map[core.PeerID]*Peer),
	}, nil
}

// DeviceMTU returns the tunnel MTU.
func (d *Device) DeviceMTU() int {
	return d.deviceMTU
}

// PacketMTU returns the largest inbound buffer the device accepts:
// tunnel MTU plus frame overhead.
func (d *Device) PacketMTU() int {
	return d.packetMTU
}

// SetSelfID sets the device's own peer ID. Frames destined to this ID
// are delivered locally. May be called at most once before peers start
// exchanging traffic naming us.
func (d *Device) SetSelfID(id core.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selfID = id
	d.haveSelfID = true
}

// SelfID returns the device's own peer ID, if set.
func (d *Device) SelfID() (core.PeerID, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selfID, d.haveSelfID
}

// Close tears down the device. All peers must have been closed first;
// closing a device with registered peers is a bug in the caller.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		panic("receive: device closed twice")
	}
	if len(d.peers) != 0 {
		panic(fmt.Sprintf("receive: device closed with %d peers registered", len(d.peers)))
	}
	d.closed = true
}

// Metrics returns a snapshot of the device counters.
func (d *Device) Metrics() core.DeviceMetrics {
	return core.DeviceMetrics{
		FramesReceived: atomic.LoadUint64(&d.metrics.FramesReceived),
		FramesLocal:    atomic.LoadUint64(&d.metrics.FramesLocal),
		FramesRelayed:  atomic.LoadUint64(&d.metrics.FramesRelayed),
		FramesNoRoute:  atomic.LoadUint64(&d.metrics.FramesNoRoute),
		FramesDropped:  atomic.LoadUint64(&d.metrics.FramesDropped),
	}
}

// register adds a peer to the registry. Uniqueness of peer IDs is the
// caller's contract; a duplicate ID silently displaces the old entry.
func (d *Device) register(p *Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[p.id] = p
}

// unregister removes a peer from the registry by identity.
func (d *Device) unregister(p *Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.peers[p.id] == p {
		delete(d.peers, p.id)
	}
}

// find looks up a peer by ID.
func (d *Device) find(id core.PeerID) *Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peers[id]
}
