package transport

import (
	"fmt"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
	"github.com/hoplik/SakuraEDL/pkg/hsuart"
	"go.bug.st/serial"
)

// HSUARTBaudRate is the negotiated high-speed line rate used once
// the target has moved past its plain-COM bring-up phase.
const HSUARTBaudRate = 3000000

// HSUARTTransport drives the high-speed UART through the COBS/ARQ
// link layer in pkg/hsuart, performing the version handshake on
// Open and fragmenting/retrying every write.
//
// go.bug.st/serial's Mode does not expose RTS/CTS hardware flow
// control on every platform build; where the host OS and cable
// support it, enable it at the OS/driver level (stty crtscts or
// equivalent) alongside this Mode. That gap is recorded in
// DESIGN.md rather than silently worked around.
type HSUARTTransport struct {
	port serial.Port
	link *hsuart.Link
}

func NewHSUARTTransport() *HSUARTTransport {
	return &HSUARTTransport{}
}

func (h *HSUARTTransport) Open(path string) error {
	mode := &serial.Mode{
		BaudRate: HSUARTBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return fmt.Errorf("%w: %v", fherr.ErrOpenPortFailed, err)
	}
	h.port = port
	h.link = hsuart.NewLink(port)
	if err := h.link.Open(); err != nil {
		port.Close()
		h.port = nil
		h.link = nil
		return fmt.Errorf("%w: version handshake failed: %v", fherr.ErrOpenPortFailed, err)
	}
	return nil
}

func (h *HSUARTTransport) RxBlocking(buf []byte) (int, error) {
	if h.link == nil {
		return 0, fherr.ErrNotInitialized
	}
	return h.link.ReadRaw(buf)
}

func (h *HSUARTTransport) TxBlocking(buf []byte) error {
	if h.link == nil {
		return fherr.ErrNotInitialized
	}
	return h.link.Write(buf)
}

func (h *HSUARTTransport) Close() error {
	if h.link == nil {
		return nil
	}
	err := h.link.Close()
	h.link = nil
	h.port = nil
	if err != nil {
		return fmt.Errorf("%w: %v", fherr.ErrClosePortFailed, err)
	}
	return nil
}
