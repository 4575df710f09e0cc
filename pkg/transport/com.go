package transport

import (
	"fmt"
	"time"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
	"go.bug.st/serial"
)

// COMBaudRate is the fixed line speed of the plain COM transport.
const COMBaudRate = 115200

// comReadTimeout bounds a single blocking read on the COM transport.
const comReadTimeout = 50 * time.Second

// COMTransport drives an unframed serial port: every byte written or
// read passes straight through, with no COBS framing or ARQ layered
// on top. This is the transport a target uses before it has
// negotiated up to HSUART speeds.
type COMTransport struct {
	port serial.Port
}

func NewCOMTransport() *COMTransport {
	return &COMTransport{}
}

func (c *COMTransport) Open(path string) error {
	mode := &serial.Mode{
		BaudRate: COMBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return fmt.Errorf("%w: %v", fherr.ErrOpenPortFailed, err)
	}
	if err := port.SetReadTimeout(comReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("%w: %v", fherr.ErrOpenPortFailed, err)
	}
	c.port = port
	return nil
}

func (c *COMTransport) RxBlocking(buf []byte) (int, error) {
	if c.port == nil {
		return 0, fherr.ErrNotInitialized
	}
	n, err := c.port.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fherr.ErrReadPort, err)
	}
	if n == 0 {
		return 0, fherr.ErrTransportTimeout
	}
	return n, nil
}

func (c *COMTransport) TxBlocking(buf []byte) error {
	if c.port == nil {
		return fherr.ErrNotInitialized
	}
	for len(buf) > 0 {
		n, err := c.port.Write(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", fherr.ErrWritePort, err)
		}
		buf = buf[n:]
	}
	return nil
}

func (c *COMTransport) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	if err != nil {
		return fmt.Errorf("%w: %v", fherr.ErrClosePortFailed, err)
	}
	return nil
}
