// Package trace records a CBOR-encoded sequence of frame and log
// events for one loader session, giving an auditable replay log of a
// run without widening the wire protocol itself.
package trace

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Direction labels a recorded frame event.
type Direction string

const (
	DirectionTx Direction = "tx"
	DirectionRx Direction = "rx"
)

type frameEvent struct {
	Direction Direction `cbor:"direction"`
	Length    int       `cbor:"length"`
	Error     string    `cbor:"error,omitempty"`
	Unix      int64     `cbor:"unix"`
}

type logEvent struct {
	Value string `cbor:"value"`
	Unix  int64  `cbor:"unix"`
}

// Recorder appends CBOR-encoded events to a file. A nil *Recorder is
// a safe no-op, so tracing can be wired in only when a caller asks
// for it.
type Recorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	f   *os.File
}

// Open creates (or truncates) path and returns a Recorder writing to
// it.
func Open(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: %w", err)
	}
	return &Recorder{enc: cbor.NewEncoder(f), f: f}, nil
}

// RecordFrame appends one Tx/Rx event.
func (r *Recorder) RecordFrame(dir Direction, length int, err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	evt := frameEvent{Direction: dir, Length: length, Unix: time.Now().Unix()}
	if err != nil {
		evt.Error = err.Error()
	}
	_ = r.enc.Encode(evt)
}

// RecordLog appends one <log> envelope value seen on the XML stream.
func (r *Recorder) RecordLog(value string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(logEvent{Value: value, Unix: time.Now().Unix()})
}

// Close closes the underlying file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.f.Close()
}
