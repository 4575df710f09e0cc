// Package packet implements the typed packet layer that rides inside
// every COBS-stuffed HSUART frame: the fixed set of wire identifiers,
// their per-type layout, and the CRC-16 that protects each of them
// except the two single-byte control packets.
package packet

import (
	"errors"

	"github.com/hoplik/SakuraEDL/pkg/crc16"
)

// ID is a packet's single-byte wire identifier.
type ID byte

const (
	Protocol      ID = 0xF0
	EndOfTransfer ID = 0x55
	ACK           ID = 0x06
	NAK           ID = 0x09
	Version       ID = 0xAA
	ReadyToRead   ID = 0x0F
)

func (id ID) String() string {
	switch id {
	case Protocol:
		return "PROTOCOL"
	case EndOfTransfer:
		return "END_OF_TRANSFER"
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case Version:
		return "VERSION"
	case ReadyToRead:
		return "READY_TO_READ"
	default:
		return "UNKNOWN"
	}
}

// Protocol version the loader negotiates on link open. The target is
// rejected if it reports anything else.
const (
	VersionMajor byte = 1
	VersionMinor byte = 0
)

// MaxPayload is the largest payload a PROTOCOL or END_OF_TRANSFER
// packet may carry before COBS stuffing.
const MaxPayload = 4000

var (
	ErrInvalidLength    = errors.New("packet: invalid length")
	ErrUnknownID        = errors.New("packet: unknown packet id")
	ErrPayloadTooLarge  = errors.New("packet: payload exceeds maximum")
	ErrCRCMismatch      = errors.New("packet: crc mismatch")
	ErrVersionMismatch  = errors.New("packet: unsupported protocol version")
	ErrDstOverflow      = errors.New("packet: destination buffer overflow")
)

// EncodedLen returns the number of bytes Encode writes for a packet
// of the given id carrying payloadLen bytes.
func EncodedLen(id ID, payloadLen int) int {
	switch id {
	case ACK, NAK:
		return 1
	case ReadyToRead:
		return 1 + 2
	case Version:
		return 1 + 2 + 2
	case Protocol, EndOfTransfer:
		return 1 + payloadLen + 2
	default:
		return 0
	}
}

// Encode writes a typed packet into dst and returns the number of
// bytes written. payload is only meaningful for Protocol and
// EndOfTransfer; it is ignored for the other ids.
func Encode(dst []byte, id ID, payload []byte) (int, error) {
	switch id {
	case ACK, NAK:
		if len(dst) < 1 {
			return 0, ErrDstOverflow
		}
		dst[0] = byte(id)
		return 1, nil

	case ReadyToRead:
		if len(dst) < 3 {
			return 0, ErrDstOverflow
		}
		dst[0] = byte(id)
		crc16.PutBE(dst[1:3], crc16.Checksum(dst[:1]))
		return 3, nil

	case Version:
		if len(dst) < 5 {
			return 0, ErrDstOverflow
		}
		dst[0] = byte(id)
		dst[1] = VersionMajor
		dst[2] = VersionMinor
		crc16.PutBE(dst[3:5], crc16.Checksum(dst[:3]))
		return 5, nil

	case Protocol, EndOfTransfer:
		if len(payload) > MaxPayload {
			return 0, ErrPayloadTooLarge
		}
		need := 1 + len(payload) + 2
		if len(dst) < need {
			return 0, ErrDstOverflow
		}
		dst[0] = byte(id)
		copy(dst[1:1+len(payload)], payload)
		crc16.PutBE(dst[1+len(payload):need], crc16.Checksum(dst[:1+len(payload)]))
		return need, nil

	default:
		return 0, ErrUnknownID
	}
}

// Decode parses a typed packet from src, returning its id and (for
// Protocol/EndOfTransfer/Version) a view into src holding the
// type-specific fields beyond the id byte. Every CRC-bearing packet
// is validated before being accepted.
func Decode(src []byte) (id ID, payload []byte, err error) {
	if len(src) < 1 {
		return 0, nil, ErrInvalidLength
	}
	id = ID(src[0])

	switch id {
	case ACK, NAK:
		if len(src) != 1 {
			return 0, nil, ErrInvalidLength
		}
		return id, nil, nil

	case ReadyToRead:
		if len(src) != 3 {
			return 0, nil, ErrInvalidLength
		}
		if crc16.Checksum(src[:1]) != crc16.BE(src[1:3]) {
			return 0, nil, ErrCRCMismatch
		}
		return id, nil, nil

	case Version:
		if len(src) != 5 {
			return 0, nil, ErrInvalidLength
		}
		if crc16.Checksum(src[:3]) != crc16.BE(src[3:5]) {
			return 0, nil, ErrCRCMismatch
		}
		if src[1] != VersionMajor || src[2] != VersionMinor {
			return id, src[1:3], ErrVersionMismatch
		}
		return id, src[1:3], nil

	case Protocol, EndOfTransfer:
		if len(src) < 3 {
			return 0, nil, ErrInvalidLength
		}
		payloadLen := len(src) - 3
		if payloadLen > MaxPayload {
			return 0, nil, ErrPayloadTooLarge
		}
		if crc16.Checksum(src[:1+payloadLen]) != crc16.BE(src[1+payloadLen:]) {
			return 0, nil, ErrCRCMismatch
		}
		return id, src[1 : 1+payloadLen], nil

	default:
		return 0, nil, ErrUnknownID
	}
}
