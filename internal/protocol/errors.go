package protocol

import "errors"

// Transport-recoverable: the offending datagram or message is dropped.
var (
	ErrTruncatedInput     = errors.New("protocol: truncated input")
	ErrUnknownReliability = errors.New("protocol: unknown reliability")
	ErrMalformedMessage   = errors.New("protocol: malformed message")
	ErrSplitMismatch      = errors.New("protocol: split fragment mismatch")
	ErrDuplicate          = errors.New("protocol: duplicate")
	ErrUnknownPacket      = errors.New("protocol: unknown packet id")
)

// Protocol violations: rejected at the call boundary, session continues.
var (
	ErrInvalidChannel     = errors.New("protocol: invalid channel")
	ErrSplitLimitExceeded = errors.New("protocol: split count limit exceeded")
)

// Handshake-fatal: the connection attempt is abandoned.
var (
	ErrInvalidMagic         = errors.New("protocol: invalid magic")
	ErrInvalidAddress       = errors.New("protocol: invalid address")
	ErrGUIDMismatch         = errors.New("protocol: guid mismatch")
	ErrIncompatibleProtocol = errors.New("protocol: incompatible protocol version")
	ErrServerFull           = errors.New("protocol: server full")
	ErrAlreadyConnected     = errors.New("protocol: already connected")
	ErrConnectionBanned     = errors.New("protocol: connection banned")
	ErrNoCompatibleMTU      = errors.New("protocol: no compatible mtu")
	ErrInvalidMTU           = errors.New("protocol: invalid mtu")
)

// Session-fatal: the session is torn down.
var (
	ErrSessionTimeout = errors.New("protocol: session timeout")
	ErrSessionClosed  = errors.New("protocol: session closed")
)

// Category groups errors by how far they propagate.
type Category int

const (
	CategoryUnknown     Category = iota
	CategoryRecoverable
	CategoryViolation
	CategoryHandshake
	CategorySession
)

func (c Category) String() string {
	switch c {
	case CategoryRecoverable:
		return "recoverable"
	case CategoryViolation:
		return "violation"
	case CategoryHandshake:
		return "handshake"
	case CategorySession:
		return "session"
	default:
		return "unknown"
	}
}

var categories = []struct {
	err    error
	cat    Category
	reason string
}{
	{ErrTruncatedInput, CategoryRecoverable, "truncated"},
	{ErrUnknownReliability, CategoryRecoverable, "unknown_reliability"},
	{ErrMalformedMessage, CategoryRecoverable, "malformed"},
	{ErrSplitMismatch, CategoryRecoverable, "split_mismatch"},
	{ErrDuplicate, CategoryRecoverable, "duplicate"},
	{ErrUnknownPacket, CategoryRecoverable, "unknown_packet"},
	{ErrInvalidChannel, CategoryViolation, "invalid_channel"},
	{ErrSplitLimitExceeded, CategoryViolation, "split_limit"},
	{ErrInvalidMagic, CategoryHandshake, "invalid_magic"},
	{ErrInvalidAddress, CategoryHandshake, "invalid_address"},
	{ErrGUIDMismatch, CategoryHandshake, "guid_mismatch"},
	{ErrIncompatibleProtocol, CategoryHandshake, "incompatible_protocol"},
	{ErrServerFull, CategoryHandshake, "server_full"},
	{ErrAlreadyConnected, CategoryHandshake, "already_connected"},
	{ErrConnectionBanned, CategoryHandshake, "banned"},
	{ErrNoCompatibleMTU, CategoryHandshake, "no_compatible_mtu"},
	{ErrInvalidMTU, CategoryHandshake, "invalid_mtu"},
	{ErrSessionTimeout, CategorySession, "timeout"},
	{ErrSessionClosed, CategorySession, "closed"},
}

// Classify returns the category of err, or CategoryUnknown.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.cat
		}
	}
	return CategoryUnknown
}

// Reason returns a short stable label for err, suitable for metric labels
// and log fields. Unrecognized errors map to "other".
func Reason(err error) string {
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.reason
		}
	}
	return "other"
}
