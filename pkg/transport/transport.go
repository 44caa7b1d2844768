// Package transport implements the datagram layer below the receive
// path. It maps remote endpoints to peer sessions and drives each
// session's Receiver from a single read loop, which is also what makes
// frame processing single-threaded. Encryption and authentication are
// assumed to happen below this layer.
package transport

import (
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/dataproto"
	"github.com/irctrakz/meshvpn/pkg/logging"
	"github.com/irctrakz/meshvpn/pkg/receive"
	"golang.org/x/net/ipv4"
	"golang.zx2c4.com/wireguard/ratelimiter"
)

// readBatchSize is the number of datagrams read per ReadBatch call.
const readBatchSize = 32

// keepaliveMissFactor: the peer counts as silent once this many
// keepalive intervals pass without a frame from it.
const keepaliveMissFactor = 3

// Transport is a UDP datagram transport with a static peer table.
type Transport struct {
	cfg    core.TransportConfig
	device *receive.Device

	mu       sync.Mutex
	conn     *net.UDPConn
	pc       *ipv4.PacketConn
	sessions map[netip.AddrPort]*Session
	byID     map[core.PeerID]*Session
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// limiter gates log output and lookup work for datagrams arriving
	// from endpoints that are not in the peer table.
	limiter ratelimiter.Ratelimiter

	metrics core.TransportMetrics
}

// NewTransport creates a transport bound to a device. Peers are added
// with AddPeer before Start.
func NewTransport(cfg core.TransportConfig, device *receive.Device) *Transport {
	return &Transport{
		cfg:      cfg,
		device:   device,
		sessions: make(map[netip.AddrPort]*Session),
		byID:     make(map[core.PeerID]*Session),
	}
}

// AddPeer creates a session for a registered peer at the given UDP
// endpoint. The session attaches itself as the peer's sink and owns a
// Receiver for inbound frames from that endpoint.
func (t *Transport) AddPeer(peer *receive.Peer, endpoint string) (*Session, error) {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid peer endpoint %q: %w", endpoint, err)
	}
	ep := addr.AddrPort()
	if ep.Addr().Is4In6() {
		ep = netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port())
	}

	t.mu.Lock()
	if _, ok := t.byID[peer.ID()]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("peer %d already has a session", peer.ID())
	}
	if _, ok := t.sessions[ep]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("endpoint %s already in use", ep)
	}
	s := &Session{t: t, peer: peer, endpoint: ep}
	s.recv = receive.NewReceiver(peer, nil)
	t.sessions[ep] = s
	t.byID[peer.ID()] = s
	t.mu.Unlock()

	// Attaching may flush relay frames buffered for this peer, which
	// writes back through the session; do it without holding the lock.
	peer.AttachSink(s)

	logging.Infof("Transport session for peer %d at %s", peer.ID(), ep)
	return s, nil
}

// RemovePeer tears down a peer's session: detaches the sink and closes
// the Receiver. The peer itself stays registered with the device.
func (t *Transport) RemovePeer(id core.PeerID) {
	t.mu.Lock()
	s := t.byID[id]
	if s != nil {
		delete(t.byID, id)
		delete(t.sessions, s.endpoint)
	}
	t.mu.Unlock()
	if s != nil {
		s.teardown()
	}
}

// Start opens the UDP socket and starts the read and keepalive loops.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("transport already running")
	}

	addr, err := net.ResolveUDPAddr("udp", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", t.cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	t.conn = conn
	t.pc = ipv4.NewPacketConn(conn)
	t.stopCh = make(chan struct{})
	t.limiter.Init()
	t.running = true

	t.wg.Add(1)
	go t.readLoop()

	if t.cfg.KeepaliveSeconds > 0 {
		t.wg.Add(1)
		go t.keepaliveLoop(time.Duration(t.cfg.KeepaliveSeconds) * time.Second)
	}

	logging.Infof("Transport listening on %s", conn.LocalAddr())
	return nil
}

// Stop stops the loops, closes the socket and tears down all sessions.
// Safe to call on a transport that was never started; sessions are torn
// down either way.
func (t *Transport) Stop() error {
	var err error
	t.mu.Lock()
	if t.running {
		t.running = false
		close(t.stopCh)
		conn := t.conn
		t.conn = nil
		t.mu.Unlock()

		err = conn.Close()
		t.wg.Wait()
		t.limiter.Close()

		t.mu.Lock()
	}
	sessions := make([]*Session, 0, len(t.byID))
	for _, s := range t.byID {
		sessions = append(sessions, s)
	}
	t.sessions = make(map[netip.AddrPort]*Session)
	t.byID = make(map[core.PeerID]*Session)
	t.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}

	logging.Infof("Transport stopped")
	return err
}

// LocalAddr returns the bound socket address, or nil when not running.
func (t *Transport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Metrics returns a snapshot of the transport counters.
func (t *Transport) Metrics() core.TransportMetrics {
	return core.TransportMetrics{
		DatagramsReceived: atomic.LoadUint64(&t.metrics.DatagramsReceived),
		DatagramsSent:     atomic.LoadUint64(&t.metrics.DatagramsSent),
		BytesReceived:     atomic.LoadUint64(&t.metrics.BytesReceived),
		BytesSent:         atomic.LoadUint64(&t.metrics.BytesSent),
		UnknownDropped:    atomic.LoadUint64(&t.metrics.UnknownDropped),
		KeepalivesSent:    atomic.LoadUint64(&t.metrics.KeepalivesSent),
	}
}

// readLoop reads datagrams in batches and delivers each to the sending
// peer's Receiver. Deliveries are synchronous, so the loop naturally
// respects the one-buffer credit of every slot.
func (t *Transport) readLoop() {
	defer t.wg.Done()

	packetMTU := t.device.PacketMTU()
	msgs := make([]ipv4.Message, readBatchSize)
	for i := range msgs {
		msgs[i].Buffers = [][]byte{make([]byte, packetMTU)}
	}

	for {
		n, err := t.pc.ReadBatch(msgs, 0)
		if err != nil {
			select {
			case <-t.stopCh:
			default:
				logging.Errorf("Transport read: %v", err)
			}
			return
		}
		for i := 0; i < n; i++ {
			t.handleDatagram(&msgs[i])
		}
	}
}

func (t *Transport) handleDatagram(msg *ipv4.Message) {
	atomic.AddUint64(&t.metrics.DatagramsReceived, 1)
	atomic.AddUint64(&t.metrics.BytesReceived, uint64(msg.N))

	udpAddr, ok := msg.Addr.(*net.UDPAddr)
	if !ok {
		return
	}
	ep := udpAddr.AddrPort()
	if ep.Addr().Is4In6() {
		ep = netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port())
	}

	t.mu.Lock()
	s := t.sessions[ep]
	t.mu.Unlock()

	if s == nil {
		atomic.AddUint64(&t.metrics.UnknownDropped, 1)
		if t.limiter.Allow(ep.Addr()) {
			logging.Infof("Transport: datagram from unknown endpoint %s", ep)
		}
		return
	}

	s.lastRecv.Store(time.Now().UnixNano())
	s.recv.Deliver(msg.Buffers[0][:msg.N])
}

// keepaliveLoop periodically sends a no-route frame to every session.
// Bit0 of the flags tells the peer whether we are currently hearing
// from it.
func (t *Transport) keepaliveLoop(interval time.Duration) {
	defer t.wg.Done()

	selfID, haveSelfID := t.device.SelfID()
	if !haveSelfID {
		logging.Warnf("Transport: no self peer ID, keepalives disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		sessions := make([]*Session, 0, len(t.byID))
		for _, s := range t.byID {
			sessions = append(sessions, s)
		}
		t.mu.Unlock()

		silence := keepaliveMissFactor * interval
		for _, s := range sessions {
			var flags uint8
			if s.SilentFor() < silence {
				flags |= dataproto.FlagReceivingKeepalives
			}
			if err := s.WriteFrame(dataproto.EncodeKeepalive(flags, selfID)); err != nil {
				logging.Debugf("Transport: keepalive to peer %d: %v", s.peer.ID(), err)
				continue
			}
			atomic.AddUint64(&t.metrics.KeepalivesSent, 1)
		}
	}
}
