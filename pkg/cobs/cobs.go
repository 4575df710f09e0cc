// Package cobs implements Consistent Overhead Byte Stuffing: the
// zero-byte removal step the HSUART framer applies before a frame is
// terminated with a single 0x00 delimiter. Stuff/Unstuff never touch
// that delimiter themselves — it is the framer's concern, not this
// package's — so an encoded block is simply "zero-byte free", never
// "zero-terminated".
package cobs

import "errors"

var (
	ErrInvalidLength   = errors.New("cobs: invalid length")
	ErrDstOverflow     = errors.New("cobs: destination buffer overflow")
	ErrInvalidStuffing = errors.New("cobs: invalid stuffing")
)

// maxBlock is the largest code byte value: a block with this code
// carries maxBlock-1 (254) non-zero bytes and no implied zero, after
// which a forced block boundary is inserted.
const maxBlock = 0xFF

// MaxStuffedLen returns the worst-case size of the COBS encoding of
// an n-byte payload.
func MaxStuffedLen(n int) int {
	if n == 0 {
		return 1
	}
	overhead := n / (maxBlock - 1)
	if n%(maxBlock-1) != 0 {
		overhead++
	}
	return n + overhead
}

// Stuff writes the COBS encoding of src into dst and returns the
// number of bytes written. dst must be at least MaxStuffedLen(len(src))
// bytes; Stuff never grows dst itself.
func Stuff(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, ErrInvalidLength
	}

	readIdx := 0
	writeIdx := 1
	codeIdx := 0
	code := byte(1)

	for readIdx < len(src) {
		b := src[readIdx]
		if b == 0 {
			if codeIdx >= len(dst) {
				return 0, ErrDstOverflow
			}
			dst[codeIdx] = code
			code = 1
			codeIdx = writeIdx
			writeIdx++
			readIdx++
			continue
		}

		if writeIdx >= len(dst) {
			return 0, ErrDstOverflow
		}
		dst[writeIdx] = b
		writeIdx++
		readIdx++
		code++

		if code == maxBlock {
			if codeIdx >= len(dst) {
				return 0, ErrDstOverflow
			}
			dst[codeIdx] = code
			if readIdx == len(src) {
				return writeIdx, nil
			}
			code = 1
			codeIdx = writeIdx
			writeIdx++
		}
	}

	if codeIdx >= len(dst) {
		return 0, ErrDstOverflow
	}
	dst[codeIdx] = code
	return writeIdx, nil
}

// Unstuff reverses Stuff, writing the original payload into dst and
// returning the number of bytes written.
func Unstuff(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, ErrInvalidLength
	}

	readIdx := 0
	writeIdx := 0

	for readIdx < len(src) {
		code := src[readIdx]
		if code == 0 {
			return 0, ErrInvalidStuffing
		}
		readIdx++

		blockEnd := readIdx + int(code) - 1
		if blockEnd > len(src) {
			return 0, ErrInvalidStuffing
		}

		for readIdx < blockEnd {
			if writeIdx >= len(dst) {
				return 0, ErrDstOverflow
			}
			dst[writeIdx] = src[readIdx]
			writeIdx++
			readIdx++
		}

		if code != maxBlock && readIdx < len(src) {
			if writeIdx >= len(dst) {
				return 0, ErrDstOverflow
			}
			dst[writeIdx] = 0
			writeIdx++
		}
	}

	return writeIdx, nil
}
