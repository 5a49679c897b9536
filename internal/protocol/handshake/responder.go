package handshake

import (
	"fmt"
	"net/netip"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/session"
)

// Admission decides whether a peer may open a session. It returns nil to
// admit, or one of protocol.ErrConnectionBanned, protocol.ErrServerFull,
// protocol.ErrAlreadyConnected.
type Admission func(guid uint64, from netip.AddrPort) error

type ResponderConfig struct {
	GUID   uint64
	MaxMTU int
	Policy Admission
}

// Responder answers negotiation probes. It keeps no per-peer state and is
// safe for concurrent use.
type Responder struct {
	cfg ResponderConfig
}

func NewResponder(cfg ResponderConfig) (*Responder, error) {
	if cfg.MaxMTU == 0 {
		cfg.MaxMTU = protocol.MaximumMTU
	}
	if cfg.MaxMTU < protocol.MinimumMTU || cfg.MaxMTU > protocol.MaximumMTU {
		return nil, fmt.Errorf("%w: responder mtu %d", protocol.ErrInvalidMTU, cfg.MaxMTU)
	}
	return &Responder{cfg: cfg}, nil
}

// Handle answers one offline packet from a peer. reply is sent back when
// non-nil, including alongside a rejection error. result is set once a
// Request2 is admitted; the caller then builds the session.
func (r *Responder) Handle(from netip.AddrPort, raw []byte) (reply []byte, result *Result, err error) {
	p, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	switch p := p.(type) {
	case OpenConnectionRequest1:
		if p.Version != protocol.ProtocolVersion {
			reply := IncompatibleProtocolVersion{Version: protocol.ProtocolVersion, ServerGUID: r.cfg.GUID}.Encode()
			return reply, nil, fail(protocol.ErrIncompatibleProtocol,
				"incompatible protocol version: expected %d got %d", protocol.ProtocolVersion, p.Version)
		}
		mtu := min(p.MTU, r.cfg.MaxMTU)
		if mtu < protocol.MinimumMTU {
			return nil, nil, fmt.Errorf("%w: probe of %d bytes", protocol.ErrInvalidMTU, p.MTU)
		}
		return OpenConnectionReply1{ServerGUID: r.cfg.GUID, MTU: mtu}.Encode(), nil, nil
	case OpenConnectionRequest2:
		if r.cfg.Policy != nil {
			if err := r.cfg.Policy(p.ClientGUID, from); err != nil {
				id, ok := rejectionID(err)
				if !ok {
					return nil, nil, err
				}
				return Rejection{Kind: id, ServerGUID: r.cfg.GUID}.Encode(), nil, rejectionError(id)
			}
		}
		mtu := min(p.MTU, r.cfg.MaxMTU)
		if mtu < protocol.MinimumMTU {
			return nil, nil, fmt.Errorf("%w: request2 mtu %d", protocol.ErrInvalidMTU, p.MTU)
		}
		reply := OpenConnectionReply2{
			ServerGUID:    r.cfg.GUID,
			ClientAddress: from,
			MTU:           mtu,
		}.Encode()
		return reply, &Result{
			LocalGUID: r.cfg.GUID,
			PeerGUID:  p.ClientGUID,
			Peer:      from,
			MTU:       mtu,
		}, nil
	default:
		return nil, nil, fmt.Errorf("%w: 0x%02x is not a request", protocol.ErrUnknownPacket, p.ID())
	}
}

// Establish builds the session engine for a finished negotiation.
func Establish(result Result, cfg session.Config, send session.Sender, handler session.Handler) (*session.Engine, error) {
	cfg.MTU = result.MTU
	cfg.GUID = result.LocalGUID
	cfg.PeerGUID = result.PeerGUID
	return session.New(cfg, send, handler)
}
