package transport

import (
	"fmt"
	"os"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
)

// PipeTransport drives a pair of pre-created named pipes (FIFOs) as
// a stand-in for real hardware: path+".rx" is read from, path+".tx"
// is written to. It exists for simulation and integration tests,
// mirroring the original's Linux-pipe test transport.
type PipeTransport struct {
	rx *os.File
	tx *os.File
}

func NewPipeTransport() *PipeTransport {
	return &PipeTransport{}
}

func (p *PipeTransport) Open(path string) error {
	rx, err := os.OpenFile(path+".rx", os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", fherr.ErrOpenPortFailed, err)
	}
	tx, err := os.OpenFile(path+".tx", os.O_WRONLY, 0)
	if err != nil {
		rx.Close()
		return fmt.Errorf("%w: %v", fherr.ErrOpenPortFailed, err)
	}
	p.rx, p.tx = rx, tx
	return nil
}

func (p *PipeTransport) RxBlocking(buf []byte) (int, error) {
	if p.rx == nil {
		return 0, fherr.ErrNotInitialized
	}
	n, err := p.rx.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", fherr.ErrReadPort, err)
	}
	return n, nil
}

func (p *PipeTransport) TxBlocking(buf []byte) error {
	if p.tx == nil {
		return fherr.ErrNotInitialized
	}
	for len(buf) > 0 {
		n, err := p.tx.Write(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", fherr.ErrWritePort, err)
		}
		buf = buf[n:]
	}
	return nil
}

func (p *PipeTransport) Close() error {
	var firstErr error
	if p.rx != nil {
		if err := p.rx.Close(); err != nil {
			firstErr = err
		}
		p.rx = nil
	}
	if p.tx != nil {
		if err := p.tx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.tx = nil
	}
	if firstErr != nil {
		return fmt.Errorf("%w: %v", fherr.ErrClosePortFailed, firstErr)
	}
	return nil
}
