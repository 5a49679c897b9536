package handshake

import (
	"fmt"
	"net/netip"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/cursor"
)

// request1Overhead is the id, magic and version bytes of a first probe.
const request1Overhead = 1 + 16 + 1

// Packet is any offline negotiation packet.
type Packet interface {
	ID() uint8
	Encode() []byte
}

// OpenConnectionRequest1 probes one MTU. Its datagram is zero padded so the
// datagram length equals MTU; the length is the measurement.
type OpenConnectionRequest1 struct {
	Version uint8
	MTU     int
}

func (p OpenConnectionRequest1) ID() uint8 { return protocol.IDOpenConnectionRequest1 }

func (p OpenConnectionRequest1) Encode() []byte {
	b := cursor.New()
	b.WriteUint8(p.ID())
	b.WriteMagic()
	b.WriteUint8(p.Version)
	if p.MTU > request1Overhead {
		b.Pad(p.MTU - request1Overhead)
	}
	return b.Bytes()
}

// OpenConnectionReply1 carries the responder GUID and the MTU it accepts.
type OpenConnectionReply1 struct {
	ServerGUID uint64
	Security   bool
	MTU        int
}

func (p OpenConnectionReply1) ID() uint8 { return protocol.IDOpenConnectionReply1 }

func (p OpenConnectionReply1) Encode() []byte {
	b := cursor.New()
	b.WriteUint8(p.ID())
	b.WriteMagic()
	b.WriteUint64(p.ServerGUID)
	b.WriteBool(p.Security)
	b.WriteUint16(uint16(p.MTU))
	return b.Bytes()
}

type OpenConnectionRequest2 struct {
	ServerAddress netip.AddrPort
	MTU           int
	ClientGUID    uint64
}

func (p OpenConnectionRequest2) ID() uint8 { return protocol.IDOpenConnectionRequest2 }

func (p OpenConnectionRequest2) Encode() []byte {
	b := cursor.New()
	b.WriteUint8(p.ID())
	b.WriteMagic()
	b.WriteAddress(p.ServerAddress)
	b.WriteUint16(uint16(p.MTU))
	b.WriteUint64(p.ClientGUID)
	return b.Bytes()
}

// OpenConnectionReply2 confirms the final MTU and echoes the address the
// responder saw the initiator at.
type OpenConnectionReply2 struct {
	ServerGUID    uint64
	ClientAddress netip.AddrPort
	MTU           int
	Encryption    bool
}

func (p OpenConnectionReply2) ID() uint8 { return protocol.IDOpenConnectionReply2 }

func (p OpenConnectionReply2) Encode() []byte {
	b := cursor.New()
	b.WriteUint8(p.ID())
	b.WriteMagic()
	b.WriteUint64(p.ServerGUID)
	b.WriteAddress(p.ClientAddress)
	b.WriteUint16(uint16(p.MTU))
	b.WriteBool(p.Encryption)
	return b.Bytes()
}

// Rejection is one of the already-connected, no-free-slots or banned
// answers. Kind holds the packet id.
type Rejection struct {
	Kind       uint8
	ServerGUID uint64
}

func (p Rejection) ID() uint8 { return p.Kind }

func (p Rejection) Encode() []byte {
	b := cursor.New()
	b.WriteUint8(p.Kind)
	b.WriteMagic()
	b.WriteUint64(p.ServerGUID)
	return b.Bytes()
}

type IncompatibleProtocolVersion struct {
	Version    uint8
	ServerGUID uint64
}

func (p IncompatibleProtocolVersion) ID() uint8 { return protocol.IDIncompatibleProtocolVersion }

func (p IncompatibleProtocolVersion) Encode() []byte {
	b := cursor.New()
	b.WriteUint8(p.ID())
	b.WriteUint8(p.Version)
	b.WriteMagic()
	b.WriteUint64(p.ServerGUID)
	return b.Bytes()
}

// IsOffline reports whether id belongs to a negotiation packet.
func IsOffline(id uint8) bool {
	switch id {
	case protocol.IDOpenConnectionRequest1,
		protocol.IDOpenConnectionReply1,
		protocol.IDOpenConnectionRequest2,
		protocol.IDOpenConnectionReply2,
		protocol.IDAlreadyConnected,
		protocol.IDNoFreeIncomingConnections,
		protocol.IDConnectionBanned,
		protocol.IDIncompatibleProtocolVersion:
		return true
	}
	return false
}

// Parse decodes any negotiation packet. Magic mismatches surface as
// protocol.ErrInvalidMagic, short input as protocol.ErrTruncatedInput.
func Parse(raw []byte) (Packet, error) {
	b := cursor.From(raw)
	id, err := b.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch id {
	case protocol.IDOpenConnectionRequest1:
		if err := b.ReadMagic(); err != nil {
			return nil, err
		}
		version, err := b.ReadUint8()
		if err != nil {
			return nil, err
		}
		return OpenConnectionRequest1{Version: version, MTU: len(raw)}, nil
	case protocol.IDOpenConnectionReply1:
		var p OpenConnectionReply1
		if err := b.ReadMagic(); err != nil {
			return nil, err
		}
		if p.ServerGUID, err = b.ReadUint64(); err != nil {
			return nil, err
		}
		if p.Security, err = b.ReadBool(); err != nil {
			return nil, err
		}
		mtu, err := b.ReadUint16()
		if err != nil {
			return nil, err
		}
		p.MTU = int(mtu)
		return p, nil
	case protocol.IDOpenConnectionRequest2:
		var p OpenConnectionRequest2
		if err := b.ReadMagic(); err != nil {
			return nil, err
		}
		if p.ServerAddress, err = b.ReadAddress(); err != nil {
			return nil, err
		}
		mtu, err := b.ReadUint16()
		if err != nil {
			return nil, err
		}
		p.MTU = int(mtu)
		if p.ClientGUID, err = b.ReadUint64(); err != nil {
			return nil, err
		}
		return p, nil
	case protocol.IDOpenConnectionReply2:
		var p OpenConnectionReply2
		if err := b.ReadMagic(); err != nil {
			return nil, err
		}
		if p.ServerGUID, err = b.ReadUint64(); err != nil {
			return nil, err
		}
		if p.ClientAddress, err = b.ReadAddress(); err != nil {
			return nil, err
		}
		mtu, err := b.ReadUint16()
		if err != nil {
			return nil, err
		}
		p.MTU = int(mtu)
		if p.Encryption, err = b.ReadBool(); err != nil {
			return nil, err
		}
		return p, nil
	case protocol.IDAlreadyConnected, protocol.IDNoFreeIncomingConnections, protocol.IDConnectionBanned:
		p := Rejection{Kind: id}
		if err := b.ReadMagic(); err != nil {
			return nil, err
		}
		if p.ServerGUID, err = b.ReadUint64(); err != nil {
			return nil, err
		}
		return p, nil
	case protocol.IDIncompatibleProtocolVersion:
		var p IncompatibleProtocolVersion
		if p.Version, err = b.ReadUint8(); err != nil {
			return nil, err
		}
		if err := b.ReadMagic(); err != nil {
			return nil, err
		}
		if p.ServerGUID, err = b.ReadUint64(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownPacket, id)
	}
}
