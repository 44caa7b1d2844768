// Package dataproto implements the wire framing spoken between peers.
//
// Wire format, little-endian:
//
//	[flags:1][from_id:2][num_peer_ids:2][dest_id:2, iff num_peer_ids==1][payload...]
//
// num_peer_ids is 0 for frames carrying no route (keepalives) and 1 for
// frames with an explicit destination. The transport below this layer is
// responsible for decryption and integrity; buffers handed to ParseFrame
// are assumed authentic.
package dataproto

import (
	"encoding/binary"
	"errors"

	"github.com/irctrakz/meshvpn/pkg/core"
)

const (
	// HeaderSize is the size of the fixed frame header.
	HeaderSize = 5

	// PeerIDSize is the size of the optional destination ID field.
	PeerIDSize = 2

	// MaxOverhead is the largest possible framing overhead. The packet
	// MTU of a device is its tunnel MTU plus this.
	MaxOverhead = HeaderSize + PeerIDSize
)

// FlagReceivingKeepalives is set by a sender that is currently receiving
// keepalives from us. Fed back to the peer's sink for bookkeeping.
const FlagReceivingKeepalives = uint8(1 << 0)

// Parse errors, distinguishable for logging.
var (
	ErrShortHeader        = errors.New("dataproto: no header")
	ErrDestinationCount   = errors.New("dataproto: wrong number of destinations")
	ErrMissingDestination = errors.New("dataproto: missing destination")
)

// Frame is a decoded wire frame. Payload aliases the parsed buffer.
type Frame struct {
	Flags   uint8
	FromID  core.PeerID
	DestID  core.PeerID
	HasDest bool
	Payload []byte
}

// ParseFrame decodes the fixed header and the optional destination field
// from buf. The returned payload is a view into buf, not a copy.
func ParseFrame(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrShortHeader
	}
	f := Frame{
		Flags:  buf[0],
		FromID: core.PeerID(binary.LittleEndian.Uint16(buf[1:3])),
	}
	numIDs := binary.LittleEndian.Uint16(buf[3:5])
	rest := buf[HeaderSize:]

	switch numIDs {
	case 0:
	case 1:
		if len(rest) < PeerIDSize {
			return Frame{}, ErrMissingDestination
		}
		f.DestID = core.PeerID(binary.LittleEndian.Uint16(rest[:PeerIDSize]))
		f.HasDest = true
		rest = rest[PeerIDSize:]
	default:
		return Frame{}, ErrDestinationCount
	}

	f.Payload = rest
	return f, nil
}

// EncodeFrame builds a wire frame with an explicit destination.
func EncodeFrame(flags uint8, from, dest core.PeerID, payload []byte) []byte {
	buf := make([]byte, HeaderSize+PeerIDSize+len(payload))
	buf[0] = flags
	binary.LittleEndian.PutUint16(buf[1:3], uint16(from))
	binary.LittleEndian.PutUint16(buf[3:5], 1)
	binary.LittleEndian.PutUint16(buf[5:7], uint16(dest))
	copy(buf[7:], payload)
	return buf
}

// EncodeKeepalive builds a frame with no destination. Such frames carry
// only the header bookkeeping and are never routed.
func EncodeKeepalive(flags uint8, from core.PeerID) []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = flags
	binary.LittleEndian.PutUint16(buf[1:3], uint16(from))
	binary.LittleEndian.PutUint16(buf[3:5], 0)
	return buf
}
