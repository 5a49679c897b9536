// Package message encodes the encapsulated message: one application payload
// plus the reliability metadata the session engine needs to order,
// deduplicate and reassemble it.
package message

import (
	"fmt"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/cursor"
	"github.com/danmuck/raknet/internal/protocol/reliability"
)

// Field widths in bytes.
const (
	FlagsLen        = 1
	PayloadLenLen   = 2
	MessageIndexLen = 3
	OrderLen        = 3 + 1
	SplitLen        = 4 + 2 + 4
)

const (
	flagSplit       uint8 = 0x10
	flagHighCode    uint8 = 0x08
	reliabilityBits       = 5
)

// MaxPayload is the largest payload whose bit length fits the uint16 field.
const MaxPayload = 0xFFFF / 8

// Encapsulated is one message as carried inside a datagram frame.
// Index fields are only meaningful when the reliability class carries them.
type Encapsulated struct {
	Reliability  reliability.Reliability
	Split        bool
	MessageIndex uint32
	OrderIndex   uint32
	OrderChannel uint8
	SplitCount   uint32
	SplitID      uint16
	SplitIndex   uint32
	Payload      []byte
}

// HeaderSize is the encoded size of a message of class r with an empty payload.
func HeaderSize(r reliability.Reliability, split bool) int {
	size := FlagsLen + PayloadLenLen
	if r.IsReliable() {
		size += MessageIndexLen
	}
	if r.Indexed() {
		size += OrderLen
	}
	if split {
		size += SplitLen
	}
	return size
}

// Size is the exact number of bytes Encode will write.
func (m Encapsulated) Size() int {
	return HeaderSize(m.Reliability, m.Split) + len(m.Payload)
}

func (m Encapsulated) flags() uint8 {
	code := m.Reliability.Code()
	flags := (code & 0x07) << reliabilityBits
	if code > 0x07 {
		flags |= flagHighCode
	}
	if m.Split {
		flags |= flagSplit
	}
	return flags
}

// Encode appends the wire form of m to b.
func (m Encapsulated) Encode(b *cursor.Buffer) error {
	if !m.Reliability.Valid() {
		return fmt.Errorf("%w: code %d", protocol.ErrUnknownReliability, m.Reliability.Code())
	}
	if len(m.Payload) > MaxPayload {
		return fmt.Errorf("%w: payload %d bytes exceeds %d", protocol.ErrMalformedMessage, len(m.Payload), MaxPayload)
	}
	b.WriteUint8(m.flags())
	b.WriteUint16(uint16(len(m.Payload) * 8))
	if m.Reliability.IsReliable() {
		b.WriteTriadLE(m.MessageIndex)
	}
	if m.Reliability.Indexed() {
		b.WriteTriadLE(m.OrderIndex)
		b.WriteUint8(m.OrderChannel)
	}
	if m.Split {
		b.WriteUint32(m.SplitCount)
		b.WriteUint16(m.SplitID)
		b.WriteUint32(m.SplitIndex)
	}
	b.Write(m.Payload)
	return nil
}

// Decode reads one message from b. Any field running past the end of b is
// reported as protocol.ErrMalformedMessage.
func Decode(b *cursor.Buffer) (Encapsulated, error) {
	var m Encapsulated
	flags, err := b.ReadUint8()
	if err != nil {
		return m, malformed(err)
	}
	code := flags >> reliabilityBits
	if flags&flagHighCode != 0 {
		code |= 0x08
	}
	r, err := reliability.FromCode(code)
	if err != nil {
		return m, err
	}
	m.Reliability = r
	m.Split = flags&flagSplit != 0

	bits, err := b.ReadUint16()
	if err != nil {
		return m, malformed(err)
	}
	if bits%8 != 0 {
		return m, fmt.Errorf("%w: payload bit length %d", protocol.ErrMalformedMessage, bits)
	}
	if r.IsReliable() {
		if m.MessageIndex, err = b.ReadTriadLE(); err != nil {
			return m, malformed(err)
		}
	}
	if r.Indexed() {
		if m.OrderIndex, err = b.ReadTriadLE(); err != nil {
			return m, malformed(err)
		}
		if m.OrderChannel, err = b.ReadUint8(); err != nil {
			return m, malformed(err)
		}
	}
	if m.Split {
		if m.SplitCount, err = b.ReadUint32(); err != nil {
			return m, malformed(err)
		}
		if m.SplitID, err = b.ReadUint16(); err != nil {
			return m, malformed(err)
		}
		if m.SplitIndex, err = b.ReadUint32(); err != nil {
			return m, malformed(err)
		}
	}
	n := int(bits / 8)
	if n > b.Remaining() {
		return m, fmt.Errorf("%w: payload %d bytes, %d remaining", protocol.ErrMalformedMessage, n, b.Remaining())
	}
	if m.Payload, err = b.Read(n); err != nil {
		return m, malformed(err)
	}
	return m, nil
}

// Clone returns a deep copy of m.
func (m Encapsulated) Clone() Encapsulated {
	out := m
	out.Payload = append([]byte(nil), m.Payload...)
	return out
}

func (m Encapsulated) String() string {
	s := fmt.Sprintf("Encapsulated{%s len=%d", m.Reliability, len(m.Payload))
	if m.Reliability.IsReliable() {
		s += fmt.Sprintf(" msg=%d", m.MessageIndex)
	}
	if m.Reliability.Indexed() {
		s += fmt.Sprintf(" order=%d/%d", m.OrderChannel, m.OrderIndex)
	}
	if m.Split {
		s += fmt.Sprintf(" split=%d %d/%d", m.SplitID, m.SplitIndex+1, m.SplitCount)
	}
	return s + "}"
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
}
