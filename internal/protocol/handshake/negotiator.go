package handshake

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Result is what both sides agree on once negotiation succeeds.
type Result struct {
	LocalGUID  uint64
	PeerGUID   uint64
	Peer       netip.AddrPort
	MTU        int
	Encryption bool
}

// Negotiator drives the initiator side. It is not safe for concurrent use.
type Negotiator struct {
	guid    uint64
	server  netip.AddrPort
	version uint8
	units   []Unit

	unit    int
	retries int
	state   session.State
	err     error

	replied    bool
	serverGUID uint64
	mtu        int
	result     Result
}

func NewNegotiator(guid uint64, server netip.AddrPort, units []Unit) (*Negotiator, error) {
	if len(units) == 0 {
		units = DefaultUnits()
	}
	if err := validateUnits(units); err != nil {
		return nil, err
	}
	sorted := SortUnits(units)
	return &Negotiator{
		guid:    guid,
		server:  server,
		version: protocol.ProtocolVersion,
		units:   sorted,
		retries: sorted[0].Retries,
		state:   session.StateUnconnected,
	}, nil
}

func (n *Negotiator) State() session.State {
	return n.state
}

func (n *Negotiator) Ready() bool {
	return n.state == session.StateConnected
}

// Err is the fatal failure, if any.
func (n *Negotiator) Err() error {
	return n.err
}

func (n *Negotiator) Result() (Result, error) {
	if n.err != nil {
		return Result{}, n.err
	}
	if !n.Ready() {
		return Result{}, ErrNotReady
	}
	return n.result, nil
}

// Attempt is the 1-based probe count for the current unit, for backoff.
func (n *Negotiator) Attempt() int {
	return n.units[n.unit].Retries - n.retries
}

// Next returns the next probe to send: Request1 until a Reply1 validates,
// Request2 afterwards. Each probe spends one retry of the current unit; an
// exhausted unit falls through to the next smaller one. It returns nil once
// negotiation finished.
func (n *Negotiator) Next() ([]byte, error) {
	if n.err != nil {
		return nil, n.err
	}
	if n.Ready() {
		return nil, nil
	}
	n.state = session.StateHandshaking
	for n.retries <= 0 {
		n.unit++
		if n.unit >= len(n.units) {
			n.unit = len(n.units) - 1
			return nil, n.abort(fail(protocol.ErrNoCompatibleMTU, "no compatible maximum transfer unit"))
		}
		n.retries = n.units[n.unit].Retries
		n.replied = false
		log.Debug().Int("mtu", n.units[n.unit].Size).Msg("handshake.Next falling back")
	}
	n.retries--
	size := n.units[n.unit].Size
	if !n.replied {
		return OpenConnectionRequest1{Version: n.version, MTU: size}.Encode(), nil
	}
	return OpenConnectionRequest2{
		ServerAddress: n.server,
		MTU:           n.mtu,
		ClientGUID:    n.guid,
	}.Encode(), nil
}

// Handle validates one reply. Fatal replies abort the negotiation and are
// returned as *HandshakeError. Unrelated packets return a non-fatal error and
// leave the state untouched.
func (n *Negotiator) Handle(raw []byte) error {
	if n.err != nil {
		return n.err
	}
	if n.Ready() {
		return nil
	}
	p, err := Parse(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrInvalidMagic) {
			return n.abort(fail(protocol.ErrInvalidMagic, "magic failed to validate"))
		}
		if errors.Is(err, protocol.ErrUnknownPacket) {
			return err
		}
		return n.abort(fail(protocol.ErrMalformedMessage, "malformed reply: %v", err))
	}

	switch p := p.(type) {
	case OpenConnectionReply1:
		if n.replied {
			return nil
		}
		// A reply to an earlier, larger request may land after a fallback.
		offered := n.units[0].Size
		if p.MTU < protocol.MinimumMTU || p.MTU > protocol.MaximumMTU {
			return n.abort(fail(protocol.ErrInvalidMTU, "invalid maximum transfer unit size %d", p.MTU))
		}
		if p.MTU > offered {
			return n.abort(fail(protocol.ErrInvalidMTU, "server maximum transfer unit %d is higher than offered %d", p.MTU, offered))
		}
		n.replied = true
		n.serverGUID = p.ServerGUID
		n.mtu = p.MTU
		log.Debug().Uint64("server_guid", p.ServerGUID).Int("mtu", p.MTU).Msg("handshake reply1 accepted")
		return nil
	case OpenConnectionReply2:
		if !n.replied {
			return fmt.Errorf("%w: reply2 before reply1", protocol.ErrUnknownPacket)
		}
		if p.ServerGUID != n.serverGUID {
			return n.abort(fail(protocol.ErrGUIDMismatch, "server responded with guid %d, expected %d", p.ServerGUID, n.serverGUID))
		}
		if p.MTU < protocol.MinimumMTU || p.MTU > n.mtu {
			return n.abort(fail(protocol.ErrInvalidMTU, "server maximum transfer unit %d is higher than agreed %d", p.MTU, n.mtu))
		}
		n.result = Result{
			LocalGUID:  n.guid,
			PeerGUID:   p.ServerGUID,
			Peer:       n.server,
			MTU:        p.MTU,
			Encryption: p.Encryption,
		}
		n.state = session.StateConnected
		log.Debug().Uint64("server_guid", p.ServerGUID).Int("mtu", p.MTU).Msg("handshake negotiated")
		return nil
	case Rejection:
		if !n.fromServer(p.ServerGUID) {
			return nil
		}
		return n.abort(rejectionError(p.Kind))
	case IncompatibleProtocolVersion:
		if !n.fromServer(p.ServerGUID) {
			return nil
		}
		return n.abort(fail(protocol.ErrIncompatibleProtocol,
			"incompatible protocol version: expected %d got %d", n.version, p.Version))
	default:
		return fmt.Errorf("%w: 0x%02x during negotiation", protocol.ErrUnknownPacket, p.ID())
	}
}

// fromServer accepts rejections from the server GUID seen in Reply1, or from
// anyone before Reply1 arrived.
func (n *Negotiator) fromServer(guid uint64) bool {
	return !n.replied || guid == n.serverGUID
}

func (n *Negotiator) abort(err *HandshakeError) error {
	n.err = err
	n.state = session.StateDisconnected
	log.Debug().Str("reason", err.Reason).Msg("handshake aborted")
	return err
}
