package hsuart

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/hoplik/SakuraEDL/pkg/packet"
)

// netPort adapts a net.Conn (a net.Pipe() endpoint in these tests) to
// the Port interface Link expects from a real serial port.
type netPort struct {
	net.Conn
}

func (p netPort) SetReadTimeout(t time.Duration) error {
	return p.Conn.SetReadDeadline(time.Now().Add(t))
}

// runTarget simulates the minimal target behaviour needed to drive a
// Link through a handshake and a reliable write: reply VERSION to
// VERSION, ACK everything else it successfully decodes, and — once
// the handshake's closing ACK arrives — send READY_TO_READ after
// rtrDelay (0 for "immediately"). Sending RTR from this same
// goroutine, inline with the read loop, keeps every conn.Write
// serialized through one goroutine instead of racing a second one.
func runTarget(t *testing.T, conn net.Conn, received *[][]byte, rtrDelay time.Duration) {
	t.Helper()
	port := netPort{conn}
	scratch := make([]byte, MaxFrame)
	raw := make([]byte, 0, MaxFrame)
	one := make([]byte, 1)

	for {
		port.SetReadTimeout(2 * time.Second)
		n, err := conn.Read(one)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		raw = append(raw, one[0])
		if one[0] != delimiter {
			continue
		}
		id, payload, err := DecodeFrame(scratch, raw)
		raw = raw[:0]
		if err != nil {
			continue
		}

		switch id {
		case packet.Version:
			buf := make([]byte, MaxFrame)
			n, _ := EncodeFrame(buf, packet.Version, nil)
			conn.Write(buf[:n])
		case packet.ACK:
			// the host ACKing our VERSION reply; handshake complete.
			// Tell the host it may start sending.
			time.Sleep(rtrDelay)
			buf := make([]byte, MaxFrame)
			n, _ := EncodeFrame(buf, packet.ReadyToRead, nil)
			conn.Write(buf[:n])
		default:
			if len(payload) > 0 {
				*received = append(*received, append([]byte(nil), payload...))
			}
			buf := make([]byte, MaxFrame)
			n, _ := EncodeFrame(buf, packet.ACK, nil)
			conn.Write(buf[:n])
		}
	}
}

func TestOpenHandshake(t *testing.T) {
	hostConn, targetConn := net.Pipe()
	defer hostConn.Close()
	defer targetConn.Close()

	var received [][]byte
	go runTarget(t, targetConn, &received, 0)

	link := NewLink(netPort{hostConn})
	if err := link.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestWriteFragmentsPayload(t *testing.T) {
	hostConn, targetConn := net.Pipe()
	defer hostConn.Close()
	defer targetConn.Close()

	var received [][]byte
	go runTarget(t, targetConn, &received, 0)

	link := NewLink(netPort{hostConn})
	if err := link.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	payload := bytes.Repeat([]byte{0x5A}, packet.MaxPayload*2+10)
	if err := link.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var got []byte
	for _, chunk := range received {
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("target received %d bytes, want %d", len(got), len(payload))
	}
	if len(received) != 3 {
		t.Fatalf("expected 3 fragments for a %d-byte payload, got %d", len(payload), len(received))
	}
}

// TestWriteBlocksUntilReadyToRead proves Write honors the RTR
// rendezvous instead of fragmenting immediately: the fake target
// withholds READY_TO_READ for a fixed delay, and Write must not
// return before that delay elapses.
func TestWriteBlocksUntilReadyToRead(t *testing.T) {
	hostConn, targetConn := net.Pipe()
	defer hostConn.Close()
	defer targetConn.Close()

	const delay = 150 * time.Millisecond
	var received [][]byte
	go runTarget(t, targetConn, &received, delay)

	link := NewLink(netPort{hostConn})
	if err := link.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}

	start := time.Now()
	if err := link.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Fatalf("Write returned after %v, want at least %v (did not wait for READY_TO_READ)", elapsed, delay)
	}
	if len(received) != 1 || string(received[0]) != "hi" {
		t.Fatalf("received = %v, want [hi]", received)
	}
}

// TestReadRawAssemblesMultiFragmentBurst proves ReadRaw stitches a
// target-to-host burst of PROTOCOL frames, terminated by
// END_OF_TRANSFER, back into one contiguous payload instead of
// returning the first frame's raw wire bytes.
func TestReadRawAssemblesMultiFragmentBurst(t *testing.T) {
	hostConn, targetConn := net.Pipe()
	defer hostConn.Close()
	defer targetConn.Close()

	go func() {
		send := func(id packet.ID, payload []byte) {
			buf := make([]byte, MaxFrame)
			n, _ := EncodeFrame(buf, id, payload)
			targetConn.Write(buf[:n])
		}
		send(packet.Protocol, []byte("abc"))
		send(packet.Protocol, []byte("def"))
		send(packet.EndOfTransfer, []byte("ghi"))
	}()

	link := NewLink(netPort{hostConn})
	buf := make([]byte, 64)
	n, err := link.ReadRaw(buf)
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if string(buf[:n]) != "abcdefghi" {
		t.Fatalf("ReadRaw = %q, want %q", buf[:n], "abcdefghi")
	}
}
