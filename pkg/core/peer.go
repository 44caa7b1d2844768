package core

// PeerID identifies a peer within one device. IDs are assigned by the
// control plane and are unique per device; the data plane treats them
// as opaque 16-bit values.
type PeerID uint16

// FrameAnalyzer is a per-peer traffic inspection hook. The receive path
// invokes it for frames that are locally destined, before the frame is
// handed to the device output. Implementations must not retain the
// payload slice past the call.
type FrameAnalyzer interface {
	// Analyze inspects a locally-destined frame from this analyzer's peer.
	Analyze(payload []byte)
}

// PeerSink is the delivery target for traffic addressed to a peer. It is
// attached to a peer while a transport connection to that peer is up.
//
// WriteFrame sends a complete wire frame to the peer. NotifyReceived is
// bookkeeping: it fires once for every well-formed frame the peer sends
// us, carrying the sender's "receiving keepalives" flag bit.
type PeerSink interface {
	WriteFrame(frame []byte) error
	NotifyReceived(receivingKeepalives bool)
}
