package session

import (
	"errors"
	"testing"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
	"github.com/hoplik/SakuraEDL/pkg/transport"
)

func TestOpenRequiresInit(t *testing.T) {
	s := New()
	if err := s.Open("/dev/null"); !errors.Is(err, fherr.ErrNotInitialized) {
		t.Fatalf("Open before Init error = %v, want ErrNotInitialized", err)
	}
}

func TestTxRequiresOpen(t *testing.T) {
	s := New()
	if err := s.Init(transport.Pipe); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Tx([]byte("x")); !errors.Is(err, fherr.ErrNotInitialized) {
		t.Fatalf("Tx before Open error = %v, want ErrNotInitialized", err)
	}
}

func TestInitRejectsReselection(t *testing.T) {
	s := New()
	if err := s.Init(transport.COM); err != nil {
		t.Fatalf("Init(COM): %v", err)
	}
	if err := s.Init(transport.HSUART); !errors.Is(err, transport.ErrAlreadySelected) {
		t.Fatalf("Init(HSUART) after COM error = %v, want ErrAlreadySelected", err)
	}
}

func TestDeinitAllowsReselection(t *testing.T) {
	s := New()
	if err := s.Init(transport.Pipe); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if err := s.Init(transport.COM); err != nil {
		t.Fatalf("Init after Deinit: %v", err)
	}
}

func TestSetOptionsIsANoop(t *testing.T) {
	s := New()
	if err := s.SetOptions(map[string]string{"anything": "goes"}); err != nil {
		t.Fatalf("SetOptions: %v", err)
	}
}
