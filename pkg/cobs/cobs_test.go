package cobs

import (
	"bytes"
	"math/rand"
	"testing"
)

func roundTrip(t *testing.T, src []byte) []byte {
	t.Helper()
	stuffed := make([]byte, MaxStuffedLen(len(src)))
	n, err := Stuff(stuffed, src)
	if err != nil {
		t.Fatalf("Stuff: %v", err)
	}
	stuffed = stuffed[:n]

	if bytes.IndexByte(stuffed, 0) != -1 {
		t.Fatalf("stuffed output contains a zero byte: %x", stuffed)
	}

	unstuffed := make([]byte, len(src)+16)
	m, err := Unstuff(unstuffed, stuffed)
	if err != nil {
		t.Fatalf("Unstuff: %v", err)
	}
	return unstuffed[:m]
}

func TestRoundTripRandom(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for n := 0; n < 200; n++ {
		length := r.Intn(600) + 1
		src := make([]byte, length)
		r.Read(src)
		got := roundTrip(t, src)
		if !bytes.Equal(got, src) {
			t.Fatalf("length %d: round trip mismatch", length)
		}
	}
}

func TestAllZeroPayload(t *testing.T) {
	src := make([]byte, 10)
	got := roundTrip(t, src)
	if !bytes.Equal(got, src) {
		t.Fatalf("all-zero round trip mismatch: %x", got)
	}
}

func TestBlockBoundaryAt254(t *testing.T) {
	for _, n := range []int{253, 254, 255, 508, 509} {
		src := bytes.Repeat([]byte{0xFF}, n)
		got := roundTrip(t, src)
		if !bytes.Equal(got, src) {
			t.Fatalf("n=%d: block boundary round trip mismatch", n)
		}
	}
}

func TestStuffEmptyInput(t *testing.T) {
	if _, err := Stuff(make([]byte, 8), nil); err != ErrInvalidLength {
		t.Fatalf("Stuff(nil) error = %v, want ErrInvalidLength", err)
	}
}

func TestStuffDstOverflow(t *testing.T) {
	src := bytes.Repeat([]byte{0x01}, 10)
	if _, err := Stuff(make([]byte, 2), src); err != ErrDstOverflow {
		t.Fatalf("Stuff overflow error = %v, want ErrDstOverflow", err)
	}
}

func TestUnstuffInvalidStuffing(t *testing.T) {
	if _, err := Unstuff(make([]byte, 8), []byte{0x00}); err != ErrInvalidStuffing {
		t.Fatalf("Unstuff leading zero code error = %v, want ErrInvalidStuffing", err)
	}
	if _, err := Unstuff(make([]byte, 8), []byte{0x05, 0x01, 0x02}); err != ErrInvalidStuffing {
		t.Fatalf("Unstuff truncated block error = %v, want ErrInvalidStuffing", err)
	}
}

func TestUnstuffDstOverflow(t *testing.T) {
	src := make([]byte, MaxStuffedLen(10))
	n, err := Stuff(src, bytes.Repeat([]byte{0x01}, 10))
	if err != nil {
		t.Fatalf("Stuff: %v", err)
	}
	if _, err := Unstuff(make([]byte, 2), src[:n]); err != ErrDstOverflow {
		t.Fatalf("Unstuff overflow error = %v, want ErrDstOverflow", err)
	}
}
