package receive

import (
	"fmt"
	"sync/atomic"

	"github.com/irctrakz/meshvpn/pkg/core"
)

// Peer is the receive-side state of one remote endpoint: its registry
// slot, its analyzer handle, and its relay source/sink handles.
//
// The device reference is non-owning; the peer must be closed before the
// device is.
type Peer struct {
	device       *Device
	id           core.PeerID
	analyzer     core.FrameAnalyzer
	relayCapable bool

	relaySource core.RelaySource
	relaySink   core.RelaySink

	// sink is guarded by device.mu; attach/detach strictly alternate.
	sink core.PeerSink

	// receivers counts live Receivers bound to this peer. Assertion
	// only, never consulted by routing.
	receivers int32
}

// NewPeer creates a peer under a device and registers it. analyzer is
// invoked for locally-destined frames this peer originates. relayCapable
// permits the peer to relay frames through this node.
//
// Peer IDs must be unique within the device; enforcing that is the
// caller's responsibility.
func (d *Device) NewPeer(id core.PeerID, analyzer core.FrameAnalyzer, relayCapable bool) *Peer {
	p := &Peer{
		device:       d,
		id:           id,
		analyzer:     analyzer,
		relayCapable: relayCapable,
		relaySource:  d.router.NewSource(id),
		relaySink:    d.router.NewSink(id),
	}
	d.register(p)
	return p
}

// ID returns the peer's ID.
func (p *Peer) ID() core.PeerID {
	return p.id
}

// RelayCapable reports whether the peer may relay frames through this
// node.
func (p *Peer) RelayCapable() bool {
	return p.relayCapable
}

// AttachSink binds the peer's transport sink. The sink receives
// reception bookkeeping and, through the relay router, frames relayed
// towards this peer. At most one sink may be attached at a time.
func (p *Peer) AttachSink(sink core.PeerSink) {
	if sink == nil {
		panic("receive: attaching nil sink")
	}
	p.device.mu.Lock()
	if p.sink != nil {
		p.device.mu.Unlock()
		panic(fmt.Sprintf("receive: peer %d already has a sink attached", p.id))
	}
	p.sink = sink
	p.device.mu.Unlock()

	p.relaySink.Attach(sink)
}

// DetachSink unbinds the peer's transport sink.
func (p *Peer) DetachSink() {
	p.device.mu.Lock()
	if p.sink == nil {
		p.device.mu.Unlock()
		panic(fmt.Sprintf("receive: peer %d has no sink attached", p.id))
	}
	p.sink = nil
	p.device.mu.Unlock()

	p.relaySink.Detach()
}

// currentSink returns the attached sink, or nil.
func (p *Peer) currentSink() core.PeerSink {
	p.device.mu.Lock()
	defer p.device.mu.Unlock()
	return p.sink
}

// Close unregisters the peer and releases its relay handles. The peer
// must have no attached sink and no live receivers.
func (p *Peer) Close() {
	if n := atomic.LoadInt32(&p.receivers); n != 0 {
		panic(fmt.Sprintf("receive: peer %d closed with %d live receivers", p.id, n))
	}
	if p.currentSink() != nil {
		panic(fmt.Sprintf("receive: peer %d closed with a sink attached", p.id))
	}
	p.device.unregister(p)
	p.relaySink.Close()
	p.relaySource.Close()
}
