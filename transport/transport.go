// Package transport abstracts the message-oriented duplex channel the MQTT
// client runs over. A transport delivers opaque binary frames and reports a
// simple closed/connecting/open status; it has no knowledge of the protocol.
package transport

import "errors"

var (
	// ErrNotOpen indicates a send was attempted while the channel is not open.
	ErrNotOpen = errors.New("transport not open")

	// ErrAlreadyDialing indicates Dial was called on a non-closed transport.
	ErrAlreadyDialing = errors.New("transport already dialing or open")
)

// Status is the coarse connection status a transport reports.
type Status byte

const (
	Closed Status = iota
	Connecting
	Open
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Transport is an already-framed duplex channel. Implementations must make
// Status, Receive and Send safe to call from the client's single poll
// goroutine while their own I/O runs in the background.
type Transport interface {
	// Dial starts opening the channel to the given address. It returns
	// immediately; progress is observed through Status.
	Dial(address string) error

	// Status reports the current channel status.
	Status() Status

	// Send transmits one binary frame.
	Send(p []byte) error

	// Receive drains and returns all frames that arrived since the last
	// call, in arrival order. It never blocks.
	Receive() [][]byte

	// Close tears the channel down. Closing a closed transport is a no-op.
	Close() error
}
