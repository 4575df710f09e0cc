package hsuart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
	"github.com/hoplik/SakuraEDL/pkg/packet"
)

const (
	// FrameReadTimeout bounds how long a single frame read waits for
	// a delimiter before the link gives up and reports a timeout.
	FrameReadTimeout = 10 * time.Second

	// MaxRawRetries bounds retries of a single raw Read/Write call on
	// the underlying port (transient errors such as EINTR), as
	// distinct from the unbounded frame-level ACK/NAK retry loop.
	MaxRawRetries = 100

	// RxRingCapacity is how much target output the link will buffer
	// while waiting for a ready-to-read rendezvous.
	RxRingCapacity = 1 << 20 // 1 MiB
)

// Port is the raw, blocking byte transport a Link runs over: a
// physical serial port or an in-memory stand-in for tests.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Link is the HSUART ARQ link layer built on top of the COBS/packet
// wire format: version handshake, per-frame ACK/NAK retry,
// fragmentation of large writes, and the ready-to-read rendezvous.
type Link struct {
	mu   sync.Mutex
	port Port

	targetInReadMode bool
	rxRing           bytes.Buffer

	scratch []byte
}

// NewLink wraps port with the HSUART link layer. port must already
// be open.
func NewLink(port Port) *Link {
	return &Link{port: port, scratch: make([]byte, MaxFrame)}
}

// Open performs the version handshake required before any frame
// traffic: send our VERSION packet, wait for the target's, and ACK
// it once the major/minor fields match.
func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeFrame(packet.Version, nil); err != nil {
		return err
	}
	id, _, err := l.readFrame(FrameReadTimeout)
	if err != nil {
		return err
	}
	if id != packet.Version {
		return fmt.Errorf("hsuart: expected VERSION during handshake, got %s", id)
	}
	return l.writeFrame(packet.ACK, nil)
}

// Write blocks on the ready-to-read rendezvous, then fragments
// payload into chunks of at most packet.MaxPayload bytes and sends
// each as a PROTOCOL frame, tagging the final chunk END_OF_TRANSFER.
// Every frame is retried, unbounded, until the target ACKs it. Once
// the burst completes (successfully or not), targetInReadMode is
// cleared so the next Write waits for a fresh rendezvous.
func (l *Link) Write(payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.waitReadyToReadLocked(); err != nil {
		return err
	}
	defer func() { l.targetInReadMode = false }()

	if len(payload) == 0 {
		return l.sendAndAwaitACK(packet.EndOfTransfer, nil)
	}

	for offset := 0; offset < len(payload); offset += packet.MaxPayload {
		end := offset + packet.MaxPayload
		if end > len(payload) {
			end = len(payload)
		}
		id := packet.Protocol
		if end == len(payload) {
			id = packet.EndOfTransfer
		}
		if err := l.sendAndAwaitACK(id, payload[offset:end]); err != nil {
			return err
		}
	}
	return nil
}

// sendAndAwaitACK sends one frame and retries, unbounded, until the
// target ACKs it. A NAK, a frame-read timeout or any other decoded
// reply triggers a resend; any other error from writing the frame or
// reading the reply (a raw transport failure, or a reply that fails
// to decode) is returned to the caller.
func (l *Link) sendAndAwaitACK(id packet.ID, payload []byte) error {
	for {
		if err := l.writeFrame(id, payload); err != nil {
			return err
		}
		respID, _, err := l.readFrame(FrameReadTimeout)
		if errors.Is(err, fherr.ErrTransportTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		switch respID {
		case packet.ACK:
			return nil
		case packet.NAK:
			continue
		case packet.ReadyToRead:
			l.targetInReadMode = true
			continue
		default:
			continue
		}
	}
}

func (l *Link) writeFrame(id packet.ID, payload []byte) error {
	buf := make([]byte, MaxFrame)
	n, err := EncodeFrame(buf, id, payload)
	if err != nil {
		return err
	}
	return l.writeAllRetrying(buf[:n])
}

func (l *Link) writeAllRetrying(b []byte) error {
	retries := 0
	for len(b) > 0 {
		n, err := l.port.Write(b)
		if err != nil {
			retries++
			if retries > MaxRawRetries {
				return fmt.Errorf("hsuart: write failed after %d retries: %w", MaxRawRetries, fherr.ErrWritePort)
			}
			continue
		}
		b = b[n:]
	}
	return nil
}

// readFrame blocks until one delimiter-terminated frame arrives or
// timeout elapses, then decodes it.
func (l *Link) readFrame(timeout time.Duration) (packet.ID, []byte, error) {
	deadline := time.Now().Add(timeout)
	raw := make([]byte, 0, MaxFrame)
	one := make([]byte, 1)
	retries := 0

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil, fmt.Errorf("hsuart: %w waiting for frame", fherr.ErrTransportTimeout)
		}
		if err := l.port.SetReadTimeout(remaining); err != nil {
			return 0, nil, fmt.Errorf("hsuart: set read timeout: %w", err)
		}
		n, err := l.port.Read(one)
		if err != nil {
			retries++
			if retries > MaxRawRetries {
				return 0, nil, fmt.Errorf("hsuart: read failed after %d retries: %w", MaxRawRetries, fherr.ErrReadPort)
			}
			continue
		}
		if n == 0 {
			continue // read timed out; loop re-checks the overall deadline
		}
		raw = append(raw, one[0])
		if one[0] == delimiter {
			id, payload, err := DecodeFrame(l.scratch, raw)
			if err != nil {
				// Malformed frame: tell the target to resend rather
				// than retrying the read ourselves.
				_ = l.writeFrame(packet.NAK, nil)
				return 0, nil, err
			}
			return id, append([]byte(nil), payload...), nil
		}
		if len(raw) >= MaxFrame {
			return 0, nil, fmt.Errorf("hsuart: frame exceeds %d bytes without a delimiter", MaxFrame)
		}
	}
}

// waitReadyToReadLocked blocks until the target has signalled, via a
// READY_TO_READ packet, that it wants the host to begin sending.
// Anything else that arrives in the meantime is buffered into the rx
// ring rather than discarded, up to RxRingCapacity. The caller must
// already hold l.mu (it is Write's first step). Like sendAndAwaitACK,
// a frame-read timeout just means "keep waiting" rather than failing
// the rendezvous outright.
func (l *Link) waitReadyToReadLocked() error {
	if l.targetInReadMode {
		return nil
	}
	for {
		id, payload, err := l.readFrame(FrameReadTimeout)
		if errors.Is(err, fherr.ErrTransportTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if id == packet.ReadyToRead {
			l.targetInReadMode = true
			return nil
		}
		if l.rxRing.Len()+len(payload) <= RxRingCapacity {
			l.rxRing.Write(payload)
		}
	}
}

// ReadRaw drains bytes already buffered in the rx ring before falling
// back to receiving HSUART frames and stitching their payloads
// together into buf until an END_OF_TRANSFER frame arrives.
func (l *Link) ReadRaw(buf []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rxRing.Len() > 0 {
		return l.rxRing.Read(buf)
	}

	total := 0
	for total < len(buf) {
		id, payload, err := l.readFrame(FrameReadTimeout)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		total += copy(buf[total:], payload)
		if id == packet.EndOfTransfer {
			break
		}
	}
	return total, nil
}

// Close releases the underlying port.
func (l *Link) Close() error {
	return l.port.Close()
}
