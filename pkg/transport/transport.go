// Package transport selects and drives exactly one physical channel
// to the target: a COM (plain serial) port, an HSUART port running
// the ARQ link layer, or a pair of named pipes (FIFOs) used for
// simulation and tests. Only one transport may be active per session, mirroring the
// single physical link a loader run actually has.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
)

// Type identifies which physical channel a Transport drives.
type Type int

const (
	None Type = iota
	COM
	HSUART
	Pipe
)

func (t Type) String() string {
	switch t {
	case COM:
		return "com"
	case HSUART:
		return "hsuart"
	case Pipe:
		return "pipe"
	default:
		return "none"
	}
}

// Transport is the uniform operation set every channel implements,
// matching the C5 dispatch table: open the device, blocking receive,
// blocking send, close.
type Transport interface {
	Open(path string) error
	RxBlocking(buf []byte) (int, error)
	TxBlocking(buf []byte) error
	Close() error
}

var (
	ErrAlreadySelected = errors.New("transport: a transport is already selected for this session")
	ErrUnknownType     = errors.New("transport: unknown transport type")
)

// Selector holds the single, process-of-one transport choice for a
// session. Unlike the original process-wide global, a Selector is an
// explicitly constructed value a session owns, so two sessions in the
// same process never contend over it.
type Selector struct {
	mu       sync.Mutex
	selected Type
	active   Transport
}

// Select constructs and returns the Transport for typ, rejecting a
// second, different selection on the same Selector.
func (s *Selector) Select(typ Type) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		if s.selected == typ {
			return s.active, nil
		}
		return nil, fmt.Errorf("%w: already using %s", ErrAlreadySelected, s.selected)
	}

	var tr Transport
	switch typ {
	case COM:
		tr = NewCOMTransport()
	case HSUART:
		tr = NewHSUARTTransport()
	case Pipe:
		tr = NewPipeTransport()
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, typ)
	}

	s.selected = typ
	s.active = tr
	return tr, nil
}

// Reset clears the current selection, closing the active transport if
// one is open. Intended for test teardown and session re-use, not for
// switching transports mid-flight.
func (s *Selector) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil
	}
	err := s.active.Close()
	s.active = nil
	s.selected = None
	if err != nil {
		return fmt.Errorf("%w: %v", fherr.ErrClosePortFailed, err)
	}
	return nil
}
