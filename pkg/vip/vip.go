// Package vip implements Verified Image Programming: interleaving a
// signed hash table, and then successive chained hash tables, with
// the data frames they cover, so the target can verify each block of
// incoming image data as it arrives.
package vip

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hoplik/SakuraEDL/pkg/fherr"
	"github.com/hoplik/SakuraEDL/pkg/transport"
	"github.com/hoplik/SakuraEDL/pkg/xmlstream"
)

// State is the injector's position in the table/data interleaving
// cycle.
type State int

const (
	Disabled State = iota
	Init
	SendNextTable
	SendData
)

const (
	// SignedTableMaxSize is the largest signed hash table Enable will
	// accept.
	SignedTableMaxSize = 16 * 1024

	// ChainedChunkSize is how much of the chained table file is sent
	// at a time.
	ChainedChunkSize = 8192

	// DigestSize is the size, in bytes, of one hash digest in a
	// table, used to derive how many data frames a chained table
	// chunk covers.
	DigestSize = 32

	// FramesPerSignedTable is how many data frames follow the
	// initial signed table before the first chained table is due.
	FramesPerSignedTable = 53

	// DigestsPerTableMax bounds how many digests Enable will accept
	// per table.
	DigestsPerTableMax = 256
)

// framesPerChainedTable is how many data frames follow each chained
// table chunk: one fewer than the number of digests the chunk can
// hold, matching the original cadence.
const framesPerChainedTable = ChainedChunkSize/DigestSize - 1

var (
	ErrNotEnabled = fmt.Errorf("vip: %w", fherr.ErrNotInitialized)
)

// Injector sits between a session and its transport, interleaving
// table frames with data frames per the VIP cadence.
type Injector struct {
	mu sync.Mutex

	tr  transport.Transport
	xml *xmlstream.Reassembler

	state State

	signedTable []byte
	chained     *os.File

	digestsPerTable   int
	framesToNextTable int
	frameSent         int
}

// New builds an Injector that writes through tr and reads ACK
// envelopes through xml.
func New(tr transport.Transport, xml *xmlstream.Reassembler) *Injector {
	return &Injector{tr: tr, xml: xml, state: Disabled}
}

// Enable reads the signed table and opens the chained table file,
// arming the state machine. digestsPerTable is clamped to
// DigestsPerTableMax.
func (inj *Injector) Enable(signedTablePath, chainedTablePath string, digestsPerTable int) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	data, err := os.ReadFile(signedTablePath)
	if err != nil {
		return fmt.Errorf("vip: reading signed table: %w", fherr.ErrFileIO)
	}
	if len(data) > SignedTableMaxSize {
		return fmt.Errorf("vip: signed table exceeds %d bytes: %w", SignedTableMaxSize, fherr.ErrInvalidParameter)
	}

	chained, err := os.Open(chainedTablePath)
	if err != nil {
		return fmt.Errorf("vip: opening chained table: %w", fherr.ErrFileIO)
	}

	if digestsPerTable <= 0 || digestsPerTable > DigestsPerTableMax {
		digestsPerTable = DigestsPerTableMax
	}

	inj.signedTable = data
	inj.chained = chained
	inj.digestsPerTable = digestsPerTable
	inj.state = Init
	return nil
}

// Enabled reports whether Enable has armed the injector.
func (inj *Injector) Enabled() bool {
	inj.mu.Lock()
	defer inj.mu.Unlock()
	return inj.state != Disabled
}

// Tx drives one step of the VIP cadence for a data frame: sending any
// table that is due before payload, then payload itself. When the
// injector was never enabled, payload is written straight through.
func (inj *Injector) Tx(payload []byte) error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	if inj.state == Disabled {
		return inj.tr.TxBlocking(payload)
	}

	if inj.state == Init {
		if err := inj.sendTableAndAwaitACK(inj.signedTable); err != nil {
			return err
		}
		inj.framesToNextTable = FramesPerSignedTable
		inj.frameSent = 0
		inj.state = SendData
	}

	if inj.state == SendNextTable {
		chunk, err := inj.nextChainedChunk()
		if err != nil {
			return err
		}
		if err := inj.sendTableAndAwaitACK(chunk); err != nil {
			return err
		}
		inj.framesToNextTable = framesPerChainedTable
		inj.frameSent = 0
		inj.state = SendData
	}

	if err := inj.tr.TxBlocking(payload); err != nil {
		return err
	}
	inj.frameSent++
	if inj.frameSent >= inj.framesToNextTable {
		inj.state = SendNextTable
	}
	return nil
}

func (inj *Injector) sendTableAndAwaitACK(table []byte) error {
	if err := inj.tr.TxBlocking(table); err != nil {
		return err
	}
	buf := make([]byte, xmlstream.ScratchSize)
	n, err := inj.xml.ReadResponse(buf)
	if err != nil {
		return err
	}
	if !ackOK(buf[:n]) {
		return fmt.Errorf("vip: table not acknowledged: %w", fherr.ErrTargetNAK)
	}
	return nil
}

func (inj *Injector) nextChainedChunk() ([]byte, error) {
	buf := make([]byte, ChainedChunkSize)
	n, err := inj.chained.Read(buf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("vip: reading chained table: %w", fherr.ErrFileIO)
	}
	return buf[:n], nil
}

// Close releases the chained table file handle and disarms the
// injector.
func (inj *Injector) Close() error {
	inj.mu.Lock()
	defer inj.mu.Unlock()

	inj.state = Disabled
	if inj.chained == nil {
		return nil
	}
	err := inj.chained.Close()
	inj.chained = nil
	return err
}

// ackOK reports whether a response envelope's value attribute starts
// with "ACK", case-insensitively.
func ackOK(envelope []byte) bool {
	const marker = `value="`
	idx := bytes.Index(envelope, []byte(marker))
	if idx < 0 {
		return false
	}
	rest := envelope[idx+len(marker):]
	if len(rest) < 3 {
		return false
	}
	return strings.EqualFold(string(rest[:3]), "ack")
}
