// Package frame batches encapsulated messages under one datagram sequence
// number for a single UDP send.
package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/cursor"
	"github.com/danmuck/raknet/internal/protocol/message"
)

// HeaderSize is the fixed overhead: id byte plus 24-bit sequence number.
const HeaderSize = 1 + 3

var ErrEmptyFrame = errors.New("frame: no messages")

// Frame is one datagram on the wire.
type Frame struct {
	Sequence uint32
	Messages []message.Encapsulated
}

// Size is the exact encoded length of f.
func (f *Frame) Size() int {
	size := HeaderSize
	for i := range f.Messages {
		size += f.Messages[i].Size()
	}
	return size
}

// Fits reports whether appending m keeps f within mtu bytes.
func (f *Frame) Fits(m *message.Encapsulated, mtu int) bool {
	return f.Size()+m.Size() <= mtu
}

func (f *Frame) Encode() ([]byte, error) {
	if len(f.Messages) == 0 {
		return nil, ErrEmptyFrame
	}
	b := cursor.New()
	b.WriteUint8(protocol.IDFrame)
	b.WriteTriadLE(f.Sequence)
	for i := range f.Messages {
		if err := f.Messages[i].Encode(b); err != nil {
			return nil, err
		}
	}
	return b.Bytes(), nil
}

// Decode parses a whole datagram. Messages are read until the buffer is
// exhausted; a trailing partial message rejects the frame.
func Decode(raw []byte) (Frame, error) {
	b := cursor.From(raw)
	id, err := b.ReadUint8()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
	}
	if !protocol.IsFrameID(id) {
		return Frame{}, fmt.Errorf("%w: 0x%02x is not a frame", protocol.ErrUnknownPacket, id)
	}
	seq, err := b.ReadTriadLE()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
	}
	f := Frame{Sequence: seq}
	for b.Remaining() > 0 {
		m, err := message.Decode(b)
		if err != nil {
			return Frame{}, fmt.Errorf("frame %d message %d: %w", seq, len(f.Messages), err)
		}
		f.Messages = append(f.Messages, m)
	}
	return f, nil
}

// WithoutUnreliables returns a copy of f keeping only reliable messages.
func (f Frame) WithoutUnreliables() Frame {
	out := Frame{Sequence: f.Sequence}
	for _, m := range f.Messages {
		if m.Reliability.IsReliable() {
			out.Messages = append(out.Messages, m)
		}
	}
	return out
}
