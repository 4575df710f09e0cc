// Package session provides the public facade over the loader core:
// Init/Open/Tx/RxXML/RxRaw/EnableVIP/Close/Deinit. A Session is the
// single, explicitly-constructed handle a caller owns — never a
// shared or copied value, and never a process-wide global — so two
// independent Sessions in one process (e.g. under test) never
// contend over static state the way the original C sources did.
package session

import (
	"fmt"
	"sync"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
	"github.com/hoplik/SakuraEDL/pkg/metrics"
	"github.com/hoplik/SakuraEDL/pkg/telemetry"
	"github.com/hoplik/SakuraEDL/pkg/trace"
	"github.com/hoplik/SakuraEDL/pkg/transport"
	"github.com/hoplik/SakuraEDL/pkg/vip"
	"github.com/hoplik/SakuraEDL/pkg/xmlstream"
	"github.com/rs/xid"
)

// Session is the caller's single handle onto one loader run.
type Session struct {
	mu sync.Mutex

	selector transport.Selector
	tr       transport.Transport
	xml      *xmlstream.Reassembler
	vip      *vip.Injector

	telemetry *telemetry.Publisher
	metrics   *metrics.Collector
	trace     *trace.Recorder

	transferID xid.ID
	opened     bool
}

// Option configures optional, off-critical-path collaborators.
type Option func(*Session)

// WithTelemetry wires a Redis-backed event publisher into the
// session. Passing a nil publisher is equivalent to omitting the
// option.
func WithTelemetry(pub *telemetry.Publisher) Option {
	return func(s *Session) { s.telemetry = pub }
}

// WithMetrics wires a Prometheus metrics collector into the session.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Session) { s.metrics = c }
}

// WithTrace wires a CBOR frame-trace recorder into the session.
func WithTrace(r *trace.Recorder) Option {
	return func(s *Session) { s.trace = r }
}

// New constructs an unopened Session. Init and Open must be called,
// in that order, before any data-plane method.
func New(opts ...Option) *Session {
	s := &Session{transferID: xid.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init selects which physical transport this session's Open will
// use. Calling it again with the same type returns the same
// transport; a different type fails with transport.ErrAlreadySelected
// until Deinit releases the selection.
func (s *Session) Init(typ transport.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tr, err := s.selector.Select(typ)
	if err != nil {
		return err
	}
	s.tr = tr
	if s.telemetry != nil {
		s.telemetry.Event(s.transferID, "init", typ.String())
	}
	return nil
}

// Open opens the selected transport at path and performs whatever
// handshake that transport requires.
func (s *Session) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tr == nil {
		return fherr.ErrNotInitialized
	}
	if err := s.tr.Open(path); err != nil {
		return err
	}
	logSink := func(value string) {
		if s.trace != nil {
			s.trace.RecordLog(value)
		}
	}
	s.xml = xmlstream.New(rxAdapter{s.tr}, logSink)
	s.vip = vip.New(s.tr, s.xml)
	s.opened = true
	if s.telemetry != nil {
		s.telemetry.Event(s.transferID, "open", path)
	}
	if s.metrics != nil {
		s.metrics.SessionsOpened.Inc()
	}
	return nil
}

// rxAdapter lets xmlstream scan a transport.Transport's RxBlocking
// stream without xmlstream needing to know about transport.Transport
// itself.
type rxAdapter struct{ tr transport.Transport }

func (a rxAdapter) RxBlocking(buf []byte) (int, error) { return a.tr.RxBlocking(buf) }

// Tx sends data through the VIP injector (a no-op pass-through when
// VIP was never enabled), recording telemetry and metrics for the
// frame.
func (s *Session) Tx(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return fherr.ErrNotInitialized
	}
	err := s.vip.Tx(data)
	if s.trace != nil {
		s.trace.RecordFrame(trace.DirectionTx, len(data), err)
	}
	if s.metrics != nil {
		s.metrics.FramesSent.Inc()
		s.metrics.BytesSent.Add(float64(len(data)))
		if err != nil {
			s.metrics.Errors.Inc()
		}
	}
	if s.telemetry != nil && err != nil {
		s.telemetry.Event(s.transferID, "tx-error", err.Error())
	}
	return err
}

// RxXML blocks for the next <response> envelope from the target.
func (s *Session) RxXML(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, fherr.ErrNotInitialized
	}
	n, err := s.xml.ReadResponse(buf)
	if s.trace != nil {
		s.trace.RecordFrame(trace.DirectionRx, n, err)
	}
	if s.metrics != nil {
		s.metrics.FramesReceived.Inc()
		if err != nil {
			s.metrics.Errors.Inc()
		}
	}
	return n, err
}

// RxRaw returns raw bytes from the transport, bypassing XML envelope
// scanning.
func (s *Session) RxRaw(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return 0, fherr.ErrNotInitialized
	}
	return s.xml.ReadRaw(buf)
}

// EnableVIP arms Verified Image Programming: every subsequent Tx call
// interleaves signed/chained hash tables with the data it sends.
func (s *Session) EnableVIP(signedTablePath, chainedTablePath string, digestsPerTable int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return fherr.ErrNotInitialized
	}
	if err := s.vip.Enable(signedTablePath, chainedTablePath, digestsPerTable); err != nil {
		return err
	}
	if s.telemetry != nil {
		s.telemetry.Event(s.transferID, "vip-enabled", signedTablePath)
	}
	return nil
}

// SetOptions is a documented no-op. The original source's transfer
// options structure is read but never acted upon; this keeps that
// behavior explicit rather than inventing semantics for it.
func (s *Session) SetOptions(map[string]string) error {
	return nil
}

// Close closes the active transport and any VIP file handles, but
// keeps the session's transport selection so Open can be called
// again against the same transport instance.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	if s.vip != nil {
		if err := s.vip.Close(); err != nil {
			firstErr = err
		}
	}
	if s.tr != nil {
		if err := s.tr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.opened = false
	if s.telemetry != nil {
		s.telemetry.Event(s.transferID, "close", "")
	}
	if firstErr != nil {
		return fmt.Errorf("session: close: %w", firstErr)
	}
	return nil
}

// Deinit releases the transport selection entirely, allowing Init to
// be called again with a different transport type.
func (s *Session) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tr = nil
	s.xml = nil
	s.vip = nil
	return s.selector.Reset()
}
