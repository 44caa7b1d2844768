package dataproto

import (
	"testing"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameWithDestination(t *testing.T) {
	payload := []byte{0xaa, 0xbb, 0xcc}
	buf := EncodeFrame(FlagReceivingKeepalives, 0x0102, 0x0304, payload)
	require.Len(t, buf, HeaderSize+PeerIDSize+len(payload))

	// Little-endian field layout.
	assert.Equal(t, byte(0x01), buf[0])
	assert.Equal(t, []byte{0x02, 0x01}, buf[1:3])
	assert.Equal(t, []byte{0x01, 0x00}, buf[3:5])
	assert.Equal(t, []byte{0x04, 0x03}, buf[5:7])

	f, err := ParseFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, FlagReceivingKeepalives, f.Flags)
	assert.Equal(t, core.PeerID(0x0102), f.FromID)
	assert.True(t, f.HasDest)
	assert.Equal(t, core.PeerID(0x0304), f.DestID)
	assert.Equal(t, payload, f.Payload)
}

func TestParseKeepalive(t *testing.T) {
	f, err := ParseFrame(EncodeKeepalive(0, 7))
	require.NoError(t, err)
	assert.Equal(t, core.PeerID(7), f.FromID)
	assert.False(t, f.HasDest)
	assert.Empty(t, f.Payload)
}

func TestParseShortHeader(t *testing.T) {
	for _, n := range []int{0, 1, HeaderSize - 1} {
		_, err := ParseFrame(make([]byte, n))
		assert.ErrorIs(t, err, ErrShortHeader, "length %d", n)
	}
}

func TestParseBadDestinationCount(t *testing.T) {
	buf := EncodeKeepalive(0, 1)
	buf[3] = 2 // num_peer_ids = 2
	_, err := ParseFrame(buf)
	assert.ErrorIs(t, err, ErrDestinationCount)
}

func TestParseMissingDestination(t *testing.T) {
	buf := EncodeKeepalive(0, 1)
	buf[3] = 1 // destination announced but absent
	_, err := ParseFrame(buf)
	assert.ErrorIs(t, err, ErrMissingDestination)

	// One byte of the two-byte destination is still missing.
	_, err = ParseFrame(append(buf, 0x05))
	assert.ErrorIs(t, err, ErrMissingDestination)
}

func TestPayloadAliasesBuffer(t *testing.T) {
	buf := EncodeFrame(0, 1, 2, []byte{1, 2, 3})
	f, err := ParseFrame(buf)
	require.NoError(t, err)
	buf[HeaderSize+PeerIDSize] = 0xff
	assert.Equal(t, byte(0xff), f.Payload[0])
}
