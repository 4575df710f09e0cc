// Package xmlstream reassembles the target's free-running
// <?xml...><data>...</data>-wrapped text stream into discrete
// envelopes, routing diagnostic <log> envelopes to a sink and
// surfacing the first <response> envelope to the caller. It is not a
// general XML parser: it recognizes exactly the two inner elements
// the boot protocol ever sends.
package xmlstream

import (
	"bytes"
	"fmt"
	"time"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
)

const (
	// ScratchSize is the size of each raw read performed while
	// hunting for an envelope.
	ScratchSize = 4096

	// ResponseTimeout bounds the whole wait for a <response>
	// envelope. Every <log> envelope seen along the way resets it.
	ResponseTimeout = 120 * time.Second
)

// RawReader is the blocking byte source a Reassembler scans, usually
// a transport.Transport's RxBlocking method.
type RawReader interface {
	RxBlocking(buf []byte) (int, error)
}

// Reassembler accumulates bytes from a RawReader until it can extract
// a complete envelope.
type Reassembler struct {
	r       RawReader
	buf     []byte
	chunk   []byte
	logSink func(value string)
}

// New builds a Reassembler over r. logSink, if non-nil, is called
// with the value of every <log> envelope encountered.
func New(r RawReader, logSink func(string)) *Reassembler {
	return &Reassembler{r: r, logSink: logSink, chunk: make([]byte, ScratchSize)}
}

// ReadRaw returns whatever bytes are available, bypassing envelope
// scanning: any bytes already buffered from a prior scan are drained
// first, then the underlying reader is consulted directly.
func (rs *Reassembler) ReadRaw(buf []byte) (int, error) {
	if len(rs.buf) > 0 {
		n := copy(buf, rs.buf)
		rs.buf = rs.buf[n:]
		return n, nil
	}
	return rs.r.RxBlocking(buf)
}

func (rs *Reassembler) fill(deadline time.Time) error {
	if time.Now().After(deadline) {
		return fmt.Errorf("xmlstream: %w waiting for response", fherr.ErrTransportTimeout)
	}
	n, err := rs.r.RxBlocking(rs.chunk)
	if err != nil {
		return err
	}
	rs.buf = append(rs.buf, rs.chunk[:n]...)
	return nil
}

// ReadResponse blocks until a <response> envelope arrives, copying it
// whole into buf and returning its length. Every <log> envelope seen
// first is passed to logSink and resets the overall timeout, matching
// the target's habit of streaming progress lines before its answer.
func (rs *Reassembler) ReadResponse(buf []byte) (int, error) {
	deadline := time.Now().Add(ResponseTimeout)

	for {
		start := bytes.Index(rs.buf, []byte("<?xml"))
		if start < 0 {
			if err := rs.fill(deadline); err != nil {
				return 0, err
			}
			continue
		}
		if start > 0 {
			rs.buf = rs.buf[start:] // discard leading junk
		}

		dataOpen := bytes.Index(rs.buf, []byte("<data>"))
		if dataOpen < 0 {
			if err := rs.fill(deadline); err != nil {
				return 0, err
			}
			continue
		}
		dataCloseRel := bytes.Index(rs.buf[dataOpen:], []byte("</data>"))
		if dataCloseRel < 0 {
			if err := rs.fill(deadline); err != nil {
				return 0, err
			}
			continue
		}

		dataClose := dataOpen + dataCloseRel + len("</data>")
		envelope := append([]byte(nil), rs.buf[:dataClose]...)
		inner := bytes.TrimSpace(rs.buf[dataOpen+len("<data>") : dataOpen+dataCloseRel])
		rs.buf = rs.buf[dataClose:]

		switch {
		case bytes.HasPrefix(inner, []byte("<log")):
			if rs.logSink != nil {
				rs.logSink(extractValue(inner))
			}
			deadline = time.Now().Add(ResponseTimeout)
		case bytes.HasPrefix(inner, []byte("<response")):
			if len(buf) < len(envelope) {
				return 0, fmt.Errorf("xmlstream: %w: buffer too small for %d-byte envelope", fherr.ErrInvalidParameter, len(envelope))
			}
			return copy(buf, envelope), nil
		default:
			// Unrecognized inner tag: drop the envelope and keep
			// scanning rather than failing the whole read.
		}
	}
}

// extractValue pulls the value="..." attribute out of a <log ...>
// element, truncating at the closing quote.
func extractValue(inner []byte) string {
	const marker = `value="`
	idx := bytes.Index(inner, []byte(marker))
	if idx < 0 {
		return ""
	}
	rest := inner[idx+len(marker):]
	end := bytes.IndexByte(rest, '"')
	if end < 0 {
		return string(rest)
	}
	return string(rest[:end])
}
