package crc16

import (
	"math/rand"
	"testing"
)

func TestResidueProperty(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 200; n++ {
		length := r.Intn(300) + 1
		s := make([]byte, length)
		r.Read(s)

		crc := Checksum(s)
		augmented := AppendBE(append([]byte{}, s...), crc)
		residue := Checksum(augmented)

		if residue != ResidueOK {
			t.Fatalf("length %d: residue = 0x%04X, want 0x%04X", length, residue, ResidueOK)
		}
	}
}

func TestChecksumDeterministic(t *testing.T) {
	a := Checksum([]byte("frame-header"))
	b := Checksum([]byte("frame-header"))
	if a != b {
		t.Fatalf("checksum not deterministic: %04X != %04X", a, b)
	}
}

func TestPutBEAndBERoundTrip(t *testing.T) {
	crc := Checksum([]byte{1, 2, 3, 4})
	buf := make([]byte, 2)
	PutBE(buf, crc)
	if got := BE(buf); got != crc {
		t.Fatalf("BE(PutBE(crc)) = 0x%04X, want 0x%04X", got, crc)
	}
}

func TestEmptyInput(t *testing.T) {
	// Checksum of the empty slice is well-defined: no byte is folded
	// into the zero initial register, so only the XOR-out remains.
	if Checksum(nil) != xorOut {
		t.Fatalf("Checksum(nil) = 0x%04X, want 0x%04X", Checksum(nil), xorOut)
	}
}
