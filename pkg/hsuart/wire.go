// Package hsuart implements the reliable link layer that runs over
// the high-speed UART transport: COBS+CRC framing of typed packets,
// a stop-and-wait ARQ with unbounded retry on NAK or timeout, and the
// ready-to-read rendezvous the target uses to ask the host to start
// sending it data.
package hsuart

import (
	"github.com/hoplik/SakuraEDL/pkg/cobs"
	"github.com/hoplik/SakuraEDL/pkg/packet"
)

// delimiter terminates every HSUART frame on the wire. COBS never
// produces this byte internally, so it is an unambiguous boundary.
const delimiter = 0x00

// MaxFrame is the largest a single COBS-stuffed, delimiter-terminated
// frame may be.
const MaxFrame = 4096

// EncodeFrame writes a COBS-stuffed, delimiter-terminated frame
// carrying the typed packet (id, payload) into dst and returns the
// number of bytes written.
func EncodeFrame(dst []byte, id packet.ID, payload []byte) (int, error) {
	raw := make([]byte, packet.EncodedLen(id, len(payload)))
	n, err := packet.Encode(raw, id, payload)
	if err != nil {
		return 0, err
	}
	raw = raw[:n]

	if len(dst) < cobs.MaxStuffedLen(len(raw))+1 {
		return 0, cobs.ErrDstOverflow
	}
	m, err := cobs.Stuff(dst, raw)
	if err != nil {
		return 0, err
	}
	dst[m] = delimiter
	return m + 1, nil
}

// DecodeFrame reverses EncodeFrame. frame may or may not include the
// trailing delimiter; dst is scratch space for the unstuffed packet.
func DecodeFrame(dst []byte, frame []byte) (packet.ID, []byte, error) {
	if len(frame) == 0 {
		return 0, nil, packet.ErrInvalidLength
	}
	stuffed := frame
	if stuffed[len(stuffed)-1] == delimiter {
		stuffed = stuffed[:len(stuffed)-1]
	}
	n, err := cobs.Unstuff(dst, stuffed)
	if err != nil {
		return 0, nil, err
	}
	return packet.Decode(dst[:n])
}
