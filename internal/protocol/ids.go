package protocol

// Network protocol version exchanged during MTU negotiation.
const ProtocolVersion uint8 = 8

// Session limits.
const (
	MaxChannels    = 32
	DefaultChannel = 0
	MaxSplitCount  = 128
)

// MTU bounds accepted during negotiation and by session.Config.
const (
	MinimumMTU = 400
	MaximumMTU = 1492
)

// Packet identifiers. Every raw datagram starts with one of these.
const (
	IDOpenConnectionRequest1      uint8 = 0x05
	IDOpenConnectionReply1        uint8 = 0x06
	IDOpenConnectionRequest2      uint8 = 0x07
	IDOpenConnectionReply2        uint8 = 0x08
	IDAlreadyConnected            uint8 = 0x12
	IDNoFreeIncomingConnections   uint8 = 0x14
	IDConnectionBanned            uint8 = 0x17
	IDIncompatibleProtocolVersion uint8 = 0x19
	IDFrameFirst                  uint8 = 0x80
	IDFrame                       uint8 = 0x84
	IDFrameLast                   uint8 = 0x8F
	IDNack                        uint8 = 0xA0
	IDAck                         uint8 = 0xC0
)

// Magic marks offline (handshake) packets.
var Magic = [16]byte{
	0x00, 0xff, 0xff, 0x00,
	0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd,
	0x12, 0x34, 0x56, 0x78,
}

// IsFrameID reports whether id marks a datagram frame.
func IsFrameID(id uint8) bool {
	return id >= IDFrameFirst && id <= IDFrameLast
}
