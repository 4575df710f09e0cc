// Package fherr defines the sentinel error taxonomy shared by every
// layer of the loader core, from COBS framing up through the session
// wrapper. Callers use errors.Is against these values rather than
// matching on strings.
package fherr

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotSupported     = errors.New("not supported")
	ErrNotInitialized   = errors.New("not initialized")
	ErrOpenPortFailed   = errors.New("open port failed")
	ErrClosePortFailed  = errors.New("close port failed")
	ErrReadPort         = errors.New("read port error")
	ErrWritePort        = errors.New("write port error")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrFileIO           = errors.New("file io error")
	ErrNoMemory         = errors.New("no memory")
	ErrTargetNAK        = errors.New("target nak")
)
