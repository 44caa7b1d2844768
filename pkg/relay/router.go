// Package relay implements the buffered, flow-controlled relay transport
// between peer pairs. Frames submitted for relaying are re-encapsulated
// and buffered per source/destination pair until the destination peer
// has a transport sink attached, then written out in order.
package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/dataproto"
	"github.com/irctrakz/meshvpn/pkg/logging"
)

// Router is the concrete core.RelayRouter. One per device.
type Router struct {
	deviceMTU int

	mu    sync.Mutex
	flows map[flowKey]*flow
	sinks map[core.PeerID]core.PeerSink

	metrics core.RelayMetrics
}

type flowKey struct {
	src, dst core.PeerID
}

// flow is the buffered path from one source peer to one destination
// peer. Created lazily on first submission, torn down after the
// inactivity timeout.
type flow struct {
	key    flowKey
	frames [][]byte
	limit  int
	timer  *time.Timer
}

// NewRouter creates a relay router for a device with the given tunnel
// MTU.
func NewRouter(deviceMTU int) *Router {
	return &Router{
		deviceMTU: deviceMTU,
		flows:     make(map[flowKey]*flow),
		sinks:     make(map[core.PeerID]core.PeerSink),
	}
}

// NewSource implements core.RelayRouter.
func (r *Router) NewSource(id core.PeerID) core.RelaySource {
	return &Source{router: r, id: id}
}

// NewSink implements core.RelayRouter.
func (r *Router) NewSink(id core.PeerID) core.RelaySink {
	return &Sink{router: r, id: id}
}

// Submit implements core.RelayRouter. The payload is copied; the caller
// may reuse its buffer after the call.
func (r *Router) Submit(src core.RelaySource, dst core.RelaySink, payload []byte, bufferSize int, inactivityTimeout time.Duration) {
	s, ok := src.(*Source)
	if !ok || s.router != r {
		panic("relay: source belongs to a different router")
	}
	d, ok := dst.(*Sink)
	if !ok || d.router != r {
		panic("relay: sink belongs to a different router")
	}
	if s.id == d.id {
		panic(fmt.Sprintf("relay: peer %d submitted to itself", s.id))
	}
	if len(payload) > r.deviceMTU {
		panic(fmt.Sprintf("relay: payload length %d exceeds MTU %d", len(payload), r.deviceMTU))
	}
	if bufferSize <= 0 {
		panic(fmt.Sprintf("relay: invalid buffer size %d", bufferSize))
	}

	// Re-encapsulate for the destination: the relayed frame still names
	// the original source.
	frame := dataproto.EncodeFrame(0, s.id, d.id, payload)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := flowKey{src: s.id, dst: d.id}
	fl := r.flows[key]
	if fl == nil {
		fl = &flow{key: key, limit: bufferSize}
		if inactivityTimeout > 0 {
			fl.timer = time.AfterFunc(inactivityTimeout, func() { r.expire(key) })
		}
		r.flows[key] = fl
		atomic.AddUint64(&r.metrics.FlowsCreated, 1)
		logging.Debugf("relay: flow %d->%d created", key.src, key.dst)
	} else if fl.timer != nil {
		fl.timer.Reset(inactivityTimeout)
	}

	fl.frames = append(fl.frames, frame)
	atomic.AddUint64(&r.metrics.FramesBuffered, 1)
	if len(fl.frames) > fl.limit {
		// Single-credit senders normally keep this from happening while
		// a sink is attached; a detached destination can still pile up.
		fl.frames = fl.frames[1:]
		atomic.AddUint64(&r.metrics.FramesDropped, 1)
		logging.Debugf("relay: flow %d->%d full, dropping oldest frame", key.src, key.dst)
	}

	if sink := r.sinks[d.id]; sink != nil {
		r.flushLocked(fl, sink)
	}
}

// Metrics returns a snapshot of the router counters.
func (r *Router) Metrics() core.RelayMetrics {
	return core.RelayMetrics{
		FramesBuffered: atomic.LoadUint64(&r.metrics.FramesBuffered),
		FramesFlushed:  atomic.LoadUint64(&r.metrics.FramesFlushed),
		FramesDropped:  atomic.LoadUint64(&r.metrics.FramesDropped),
		FlowsCreated:   atomic.LoadUint64(&r.metrics.FlowsCreated),
		FlowsExpired:   atomic.LoadUint64(&r.metrics.FlowsExpired),
	}
}

// expire tears down an idle flow.
func (r *Router) expire(key flowKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fl := r.flows[key]
	if fl == nil {
		return
	}
	if n := len(fl.frames); n > 0 {
		atomic.AddUint64(&r.metrics.FramesDropped, uint64(n))
	}
	delete(r.flows, key)
	atomic.AddUint64(&r.metrics.FlowsExpired, 1)
	logging.Debugf("relay: flow %d->%d expired", key.src, key.dst)
}

// flushLocked writes out all buffered frames of a flow. Caller holds
// r.mu.
func (r *Router) flushLocked(fl *flow, sink core.PeerSink) {
	for _, frame := range fl.frames {
		if err := sink.WriteFrame(frame); err != nil {
			logging.Warnf("relay: flow %d->%d: write: %v", fl.key.src, fl.key.dst, err)
			atomic.AddUint64(&r.metrics.FramesDropped, 1)
			continue
		}
		atomic.AddUint64(&r.metrics.FramesFlushed, 1)
	}
	fl.frames = fl.frames[:0]
}

// dropPeer removes all flows from or to a peer. Called when the peer's
// relay handles are closed.
func (r *Router) dropPeer(id core.PeerID, asSource bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, fl := range r.flows {
		if (asSource && key.src == id) || (!asSource && key.dst == id) {
			if fl.timer != nil {
				fl.timer.Stop()
			}
			if n := len(fl.frames); n > 0 {
				atomic.AddUint64(&r.metrics.FramesDropped, uint64(n))
			}
			delete(r.flows, key)
		}
	}
}

// Source is a peer's relay source handle.
type Source struct {
	router *Router
	id     core.PeerID
}

// Peer implements core.RelaySource.
func (s *Source) Peer() core.PeerID { return s.id }

// Close implements core.RelaySource, discarding frames buffered on the
// peer's behalf.
func (s *Source) Close() {
	s.router.dropPeer(s.id, true)
}

// Sink is a peer's relay sink handle.
type Sink struct {
	router *Router
	id     core.PeerID
}

// Peer implements core.RelaySink.
func (s *Sink) Peer() core.PeerID { return s.id }

// Attach implements core.RelaySink, flushing frames buffered for the
// peer.
func (s *Sink) Attach(sink core.PeerSink) {
	if sink == nil {
		panic("relay: attaching nil sink")
	}
	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinks[s.id] != nil {
		panic(fmt.Sprintf("relay: peer %d already has a sink attached", s.id))
	}
	r.sinks[s.id] = sink
	for _, fl := range r.flows {
		if fl.key.dst == s.id && len(fl.frames) > 0 {
			r.flushLocked(fl, sink)
		}
	}
}

// Detach implements core.RelaySink.
func (s *Sink) Detach() {
	r := s.router
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinks[s.id] == nil {
		panic(fmt.Sprintf("relay: peer %d has no sink attached", s.id))
	}
	delete(r.sinks, s.id)
}

// Close implements core.RelaySink, discarding frames buffered for the
// peer.
func (s *Sink) Close() {
	r := s.router
	r.mu.Lock()
	attached := r.sinks[s.id] != nil
	delete(r.sinks, s.id)
	r.mu.Unlock()
	if attached {
		logging.Warnf("relay: peer %d sink closed while attached", s.id)
	}
	r.dropPeer(s.id, false)
}
