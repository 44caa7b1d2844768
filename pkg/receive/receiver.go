package receive

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/irctrakz/meshvpn/pkg/dataproto"
	"github.com/irctrakz/meshvpn/pkg/logging"
)

// Receiver is the single-slot inbound channel of one transport
// connection to a peer. The transport delivers each decrypted buffer
// with Deliver and must wait for the acknowledge hook before delivering
// the next one: single-credit flow control.
//
// A Receiver pins its peer: the peer must not be closed while the
// Receiver is alive.
type Receiver struct {
	peer   *Peer
	device *Device
	ack    func()

	// busy marks the slot as holding an unprocessed buffer. Processing
	// is synchronous, so this only trips on re-entrant or concurrent
	// delivery, both caller bugs.
	busy   atomic.Bool
	closed bool
}

// NewReceiver creates a Receiver bound to peer. ack, if non-nil, is
// invoked exactly once per delivered buffer, after processing completes,
// releasing the slot for the next buffer.
func NewReceiver(peer *Peer, ack func()) *Receiver {
	atomic.AddInt32(&peer.receivers, 1)
	return &Receiver{
		peer:   peer,
		device: peer.device,
		ack:    ack,
	}
}

// Close releases the Receiver. The slot must be free: destroying a
// Receiver holding an unprocessed buffer is a caller bug.
func (r *Receiver) Close() {
	if r.closed {
		panic("receive: receiver closed twice")
	}
	if r.busy.Load() {
		panic("receive: receiver closed with a buffer in its slot")
	}
	r.closed = true
	atomic.AddInt32(&r.peer.receivers, -1)
}

// Deliver processes one inbound buffer. The buffer must not exceed the
// device's packet MTU; the transport guarantees this. The call is fully
// synchronous: by the time it returns the frame has been delivered,
// relayed or dropped, and the slot has been released.
func (r *Receiver) Deliver(buf []byte) {
	if r.closed {
		panic("receive: deliver on closed receiver")
	}
	if len(buf) > r.device.packetMTU {
		panic(fmt.Sprintf("receive: buffer length %d exceeds packet MTU %d", len(buf), r.device.packetMTU))
	}
	if !r.busy.CompareAndSwap(false, true) {
		panic("receive: deliver into an occupied slot")
	}
	atomic.AddUint64(&r.device.metrics.FramesReceived, 1)

	r.route(buf)

	// Release the slot. Exactly once, on every path out of route.
	r.busy.Store(false)
	if r.ack != nil {
		r.ack()
	}
}

// route is the per-frame routing decision: local delivery, relay or
// drop. The sink reception notification deliberately requires the whole
// header to have decoded, including a valid destination count; a frame
// failing the count check does not notify even though the flag bits were
// already in hand.
func (r *Receiver) route(buf []byte) {
	dev := r.device
	peer := r.peer

	frame, err := dataproto.ParseFrame(buf)
	if err != nil {
		r.drop()
		switch {
		case errors.Is(err, dataproto.ErrShortHeader):
			logging.Warnf("peer %d: no frame header", peer.id)
		case errors.Is(err, dataproto.ErrDestinationCount):
			logging.Warnf("peer %d: wrong number of destinations", peer.id)
		case errors.Is(err, dataproto.ErrMissingDestination):
			logging.Warnf("peer %d: missing destination", peer.id)
		default:
			logging.Warnf("peer %d: bad frame: %v", peer.id, err)
		}
		return
	}
	if len(frame.Payload) > dev.deviceMTU {
		r.drop()
		logging.Warnf("peer %d: frame too large: %d > %d", peer.id, len(frame.Payload), dev.deviceMTU)
		return
	}

	// The frame is well formed; let the sender's sink account for it.
	if sink := peer.currentSink(); sink != nil {
		sink.NotifyReceived(frame.Flags&dataproto.FlagReceivingKeepalives != 0)
	}

	if !frame.HasDest {
		// No destination, nothing to route. Keepalive-only frame.
		atomic.AddUint64(&dev.metrics.FramesNoRoute, 1)
		return
	}

	src := dev.find(frame.FromID)
	if src == nil {
		r.drop()
		logging.Infof("peer %d: source peer %d not known", peer.id, frame.FromID)
		return
	}

	if selfID, ok := dev.SelfID(); ok && frame.DestID == selfID {
		// Locally destined: analyze, then hand to the device output.
		if src.analyzer != nil {
			src.analyzer.Analyze(frame.Payload)
		}
		atomic.AddUint64(&dev.metrics.FramesLocal, 1)
		if err := dev.output.WriteFrame(frame.Payload); err != nil {
			logging.Warnf("peer %d: frame output: %v", peer.id, err)
		}
		return
	}

	// Frame is for another peer; relay if policy allows.
	if !peer.relayCapable {
		r.drop()
		logging.Warnf("peer %d: relaying not allowed", peer.id)
		return
	}
	if src != peer {
		r.drop()
		logging.Warnf("peer %d: relay source must be the sending peer, got %d", peer.id, frame.FromID)
		return
	}
	dst := dev.find(frame.DestID)
	if dst == nil {
		r.drop()
		logging.Infof("peer %d: relay destination peer %d not known", peer.id, frame.DestID)
		return
	}
	if dst == src {
		r.drop()
		logging.Warnf("peer %d: relay destination cannot be the source", peer.id)
		return
	}

	atomic.AddUint64(&dev.metrics.FramesRelayed, 1)
	dev.router.Submit(src.relaySource, dst.relaySink, frame.Payload, dev.relayBufferSize, dev.relayInactivity)
}

func (r *Receiver) drop() {
	atomic.AddUint64(&r.device.metrics.FramesDropped, 1)
}
