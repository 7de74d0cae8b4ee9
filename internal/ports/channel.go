package ports

import "io"

// SerialChannel is the byte channel to the switching peripheral.
// Read must not block for long: it returns 0, nil when no bytes are
// available so the link can be pumped cooperatively.
// go.bug.st/serial ports with a short read timeout satisfy it.
type SerialChannel interface {
	io.ReadWriter

	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}
