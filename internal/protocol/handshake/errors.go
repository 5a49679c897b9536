package handshake

import (
	"errors"
	"fmt"

	"github.com/danmuck/raknet/internal/protocol"
)

var ErrNotReady = errors.New("handshake: negotiation not finished")

// HandshakeError is a fatal negotiation failure. Reason is the user-facing
// text; Err is the protocol sentinel for errors.Is.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	return "handshake: " + e.Reason
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

func fail(err error, format string, args ...any) *HandshakeError {
	return &HandshakeError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// rejectionError maps a rejection packet id to its failure.
func rejectionError(id uint8) *HandshakeError {
	switch id {
	case protocol.IDAlreadyConnected:
		return fail(protocol.ErrAlreadyConnected, "already connected")
	case protocol.IDNoFreeIncomingConnections:
		return fail(protocol.ErrServerFull, "server full")
	default:
		return fail(protocol.ErrConnectionBanned, "connection banned")
	}
}

// rejectionID maps an admission error back to the packet that reports it.
func rejectionID(err error) (uint8, bool) {
	switch {
	case errors.Is(err, protocol.ErrAlreadyConnected):
		return protocol.IDAlreadyConnected, true
	case errors.Is(err, protocol.ErrServerFull):
		return protocol.IDNoFreeIncomingConnections, true
	case errors.Is(err, protocol.ErrConnectionBanned):
		return protocol.IDConnectionBanned, true
	}
	return 0, false
}
