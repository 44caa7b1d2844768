package core

import "time"

// RelaySource is a relay router handle representing a peer in its role
// as the originator of relayed frames. Obtained from the router when the
// peer is created and closed when the peer goes away.
type RelaySource interface {
	// Peer returns the ID of the peer this source represents.
	Peer() PeerID

	// Close releases the source and discards any frames buffered on its
	// behalf. The source must not be used afterwards.
	Close()
}

// RelaySink is a relay router handle representing a peer in its role as
// the destination of relayed frames. Frames submitted towards a sink are
// buffered until a PeerSink is attached.
type RelaySink interface {
	// Peer returns the ID of the peer this sink represents.
	Peer() PeerID

	// Attach binds the peer's transport sink, flushing any frames
	// buffered for the peer. At most one sink may be attached at a time.
	Attach(sink PeerSink)

	// Detach unbinds the transport sink. Subsequent submissions are
	// buffered again.
	Detach()

	// Close releases the sink and discards any frames buffered for it.
	Close()
}

// RelayRouter is the flow-controlled relay transport between peer pairs.
// The receive path's responsibility ends at Submit; queuing, flushing and
// backpressure are the router's concern.
type RelayRouter interface {
	// NewSource creates the relay source handle for a peer.
	NewSource(id PeerID) RelaySource

	// NewSink creates the relay sink handle for a peer.
	NewSink(id PeerID) RelaySink

	// Submit hands one frame payload to the router for relaying from src
	// to dst. bufferSize bounds the number of frames buffered for the
	// src/dst pair and inactivityTimeout bounds how long an idle pair
	// keeps its buffer. src and dst must represent different peers.
	Submit(src RelaySource, dst RelaySink, payload []byte, bufferSize int, inactivityTimeout time.Duration)
}
