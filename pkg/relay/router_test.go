package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/dataproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMTU = 100

// captureSink is a core.PeerSink recording written frames.
type captureSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *captureSink) WriteFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := make([]byte, len(frame))
	copy(data, frame)
	c.frames = append(c.frames, data)
	return nil
}

func (c *captureSink) NotifyReceived(bool) {}

func (c *captureSink) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func TestSubmitBuffersUntilAttach(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)

	r.Submit(src, dst, []byte{1}, 8, time.Minute)
	r.Submit(src, dst, []byte{2}, 8, time.Minute)

	sink := &captureSink{}
	dst.Attach(sink)

	frames := sink.Frames()
	require.Len(t, frames, 2)

	// Relayed frames keep the original source and gain an explicit
	// destination.
	for i, want := range []byte{1, 2} {
		f, err := dataproto.ParseFrame(frames[i])
		require.NoError(t, err)
		assert.Equal(t, core.PeerID(1), f.FromID)
		assert.True(t, f.HasDest)
		assert.Equal(t, core.PeerID(2), f.DestID)
		assert.Equal(t, []byte{want}, f.Payload)
	}

	m := r.Metrics()
	assert.Equal(t, uint64(2), m.FramesBuffered)
	assert.Equal(t, uint64(2), m.FramesFlushed)
	assert.Equal(t, uint64(1), m.FlowsCreated)

	dst.Detach()
}

func TestSubmitWritesThroughWhenAttached(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)

	sink := &captureSink{}
	dst.Attach(sink)

	r.Submit(src, dst, []byte{0x42}, 8, time.Minute)
	require.Len(t, sink.Frames(), 1)

	dst.Detach()
}

func TestBufferOverflowDropsOldest(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)

	for i := byte(0); i < 5; i++ {
		r.Submit(src, dst, []byte{i}, 2, time.Minute)
	}

	sink := &captureSink{}
	dst.Attach(sink)

	frames := sink.Frames()
	require.Len(t, frames, 2)
	f, err := dataproto.ParseFrame(frames[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, f.Payload)

	assert.Equal(t, uint64(3), r.Metrics().FramesDropped)
	dst.Detach()
}

func TestFlowExpiresAfterInactivity(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)

	r.Submit(src, dst, []byte{1}, 8, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return r.Metrics().FlowsExpired == 1
	}, time.Second, 5*time.Millisecond)

	// Nothing left to flush.
	sink := &captureSink{}
	dst.Attach(sink)
	assert.Empty(t, sink.Frames())
	dst.Detach()
}

func TestSubmitKeepsFlowAlive(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)

	for i := 0; i < 5; i++ {
		r.Submit(src, dst, []byte{byte(i)}, 8, 80*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, uint64(0), r.Metrics().FlowsExpired)
}

func TestSourceCloseDropsBufferedFrames(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)

	r.Submit(src, dst, []byte{1}, 8, time.Minute)
	src.Close()

	sink := &captureSink{}
	dst.Attach(sink)
	assert.Empty(t, sink.Frames())
	dst.Detach()
}

func TestContractViolations(t *testing.T) {
	r := NewRouter(testMTU)
	src := r.NewSource(1)
	dst := r.NewSink(2)
	same := r.NewSink(1)

	assert.Panics(t, func() { r.Submit(src, same, []byte{1}, 8, time.Minute) })
	assert.Panics(t, func() { r.Submit(src, dst, make([]byte, testMTU+1), 8, time.Minute) })
	assert.Panics(t, func() { r.Submit(src, dst, []byte{1}, 0, time.Minute) })
	assert.Panics(t, func() { dst.Detach() })

	other := NewRouter(testMTU)
	assert.Panics(t, func() { r.Submit(other.NewSource(1), dst, []byte{1}, 8, time.Minute) })

	sink := &captureSink{}
	dst.Attach(sink)
	assert.Panics(t, func() { dst.Attach(sink) })
	dst.Detach()
}

func TestSeparateFlowsPerPair(t *testing.T) {
	r := NewRouter(testMTU)
	srcA := r.NewSource(1)
	srcB := r.NewSource(2)
	dst := r.NewSink(3)

	r.Submit(srcA, dst, []byte{0xa}, 8, time.Minute)
	r.Submit(srcB, dst, []byte{0xb}, 8, time.Minute)
	assert.Equal(t, uint64(2), r.Metrics().FlowsCreated)

	sink := &captureSink{}
	dst.Attach(sink)
	frames := sink.Frames()
	require.Len(t, frames, 2)

	froms := make(map[core.PeerID]bool)
	for _, raw := range frames {
		f, err := dataproto.ParseFrame(raw)
		require.NoError(t, err)
		froms[f.FromID] = true
	}
	assert.True(t, froms[1])
	assert.True(t, froms[2])
	dst.Detach()
}
