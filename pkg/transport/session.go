package transport

import (
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/irctrakz/meshvpn/pkg/receive"
)

// Session is the transport state of one peer: its endpoint, its
// Receiver, and keepalive bookkeeping. It is the core.PeerSink attached
// to the peer, so relayed frames and keepalive notifications land here.
type Session struct {
	t        *Transport
	peer     *receive.Peer
	recv     *receive.Receiver
	endpoint netip.AddrPort

	// lastRecv is the unix-nano time of the last datagram from the
	// peer's endpoint.
	lastRecv atomic.Int64

	// peerReceiving mirrors the last keepalive flag the peer reported:
	// whether it is currently hearing from us.
	peerReceiving atomic.Bool
}

// WriteFrame implements core.PeerSink, sending one wire frame to the
// peer's endpoint.
func (s *Session) WriteFrame(frame []byte) error {
	s.t.mu.Lock()
	conn := s.t.conn
	s.t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport not running")
	}

	n, err := conn.WriteToUDPAddrPort(frame, s.endpoint)
	if err != nil {
		return fmt.Errorf("failed to send to %s: %w", s.endpoint, err)
	}
	atomic.AddUint64(&s.t.metrics.DatagramsSent, 1)
	atomic.AddUint64(&s.t.metrics.BytesSent, uint64(n))
	return nil
}

// NotifyReceived implements core.PeerSink. It fires once per well-formed
// frame the peer sends, carrying the peer's "receiving keepalives" bit.
func (s *Session) NotifyReceived(receivingKeepalives bool) {
	s.peerReceiving.Store(receivingKeepalives)
}

// PeerReceiving reports whether the peer last told us it is receiving
// our keepalives.
func (s *Session) PeerReceiving() bool {
	return s.peerReceiving.Load()
}

// SilentFor returns the time since the last datagram from the peer.
func (s *Session) SilentFor() time.Duration {
	last := s.lastRecv.Load()
	if last == 0 {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(time.Unix(0, last))
}

// Endpoint returns the peer's UDP endpoint.
func (s *Session) Endpoint() netip.AddrPort {
	return s.endpoint
}

// teardown detaches the session from its peer and closes the Receiver.
func (s *Session) teardown() {
	s.peer.DetachSink()
	s.recv.Close()
}
