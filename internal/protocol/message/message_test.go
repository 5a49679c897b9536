package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/cursor"
	"github.com/danmuck/raknet/internal/protocol/reliability"
)

func sample(r reliability.Reliability, split bool, payload []byte) Encapsulated {
	m := Encapsulated{Reliability: r, Split: split, Payload: payload}
	if r.IsReliable() {
		m.MessageIndex = 0x010203
	}
	if r.Indexed() {
		m.OrderIndex = 0x0A0B0C
		m.OrderChannel = 7
	}
	if split {
		m.SplitCount = 3
		m.SplitID = 0xBEEF
		m.SplitIndex = 2
	}
	return m
}

func TestRoundTripEveryReliability(t *testing.T) {
	payloads := [][]byte{{}, []byte("x"), bytes.Repeat([]byte{0x5A}, 700)}
	for _, r := range reliability.All() {
		for _, split := range []bool{false, true} {
			for _, payload := range payloads {
				in := sample(r, split, payload)
				b := cursor.New()
				if err := in.Encode(b); err != nil {
					t.Fatalf("%s encode: %v", r, err)
				}
				if b.Len() != in.Size() {
					t.Fatalf("%s split=%v size=%d encoded=%d", r, split, in.Size(), b.Len())
				}
				out, err := Decode(cursor.From(b.Bytes()))
				if err != nil {
					t.Fatalf("%s decode: %v", r, err)
				}
				if out.Reliability != in.Reliability || out.Split != in.Split ||
					out.MessageIndex != in.MessageIndex || out.OrderIndex != in.OrderIndex ||
					out.OrderChannel != in.OrderChannel || out.SplitCount != in.SplitCount ||
					out.SplitID != in.SplitID || out.SplitIndex != in.SplitIndex ||
					!bytes.Equal(out.Payload, in.Payload) {
					t.Fatalf("%s split=%v round trip mismatch: got=%s want=%s", r, split, out, in)
				}
			}
		}
	}
}

func TestHeaderByteLayout(t *testing.T) {
	m := Encapsulated{Reliability: reliability.ReliableOrdered, Split: true, Payload: []byte{1, 2}}
	b := cursor.New()
	if err := m.Encode(b); err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := b.Bytes()
	if raw[0] != 3<<5|0x10 {
		t.Fatalf("flags byte got=%08b", raw[0])
	}
	if raw[1] != 0x00 || raw[2] != 16 {
		t.Fatalf("bit length got=%x%x", raw[1], raw[2])
	}
}

func TestHeaderSize(t *testing.T) {
	cases := []struct {
		r     reliability.Reliability
		split bool
		want  int
	}{
		{reliability.Unreliable, false, 3},
		{reliability.UnreliableSequenced, false, 7},
		{reliability.Reliable, false, 6},
		{reliability.ReliableOrdered, false, 10},
		{reliability.ReliableOrdered, true, 20},
		{reliability.ReliableSequencedWithAckReceipt, true, 20},
	}
	for _, tc := range cases {
		if got := HeaderSize(tc.r, tc.split); got != tc.want {
			t.Fatalf("%s split=%v header size got=%d want=%d", tc.r, tc.split, got, tc.want)
		}
	}
}

func TestDecodeUnknownReliability(t *testing.T) {
	// code 10 = 0b010 in the top bits plus the high-code flag
	raw := []byte{0x02<<5 | 0x08, 0x00, 0x00}
	_, err := Decode(cursor.From(raw))
	if !errors.Is(err, protocol.ErrUnknownReliability) {
		t.Fatalf("expected ErrUnknownReliability, got %v", err)
	}
}

func TestDecodeBitLengthNotByteAligned(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x09, 0xAA, 0xBB}
	_, err := Decode(cursor.From(raw))
	if !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodePayloadPastEnd(t *testing.T) {
	raw := []byte{0x00, 0x00, 0x20, 0xAA, 0xBB}
	_, err := Decode(cursor.From(raw))
	if !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	m := sample(reliability.ReliableOrdered, true, []byte("abc"))
	b := cursor.New()
	if err := m.Encode(b); err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, err := Decode(cursor.From(b.Bytes()[:8]))
	if !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	m := Encapsulated{Reliability: reliability.Reliable, Payload: make([]byte, MaxPayload+1)}
	if err := m.Encode(cursor.New()); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestValueMethodSet(t *testing.T) {
	byID := map[uint16]Encapsulated{1: sample(reliability.ReliableOrdered, true, []byte("abc"))}

	b := cursor.New()
	if err := byID[1].Encode(b); err != nil {
		t.Fatalf("encode from map value: %v", err)
	}
	if b.Len() != byID[1].Size() {
		t.Fatalf("encoded %d bytes, Size reports %d", b.Len(), byID[1].Size())
	}

	var s fmt.Stringer = byID[1]
	if got := fmt.Sprintf("%v", byID[1]); got != s.String() || !strings.HasPrefix(got, "Encapsulated{") {
		t.Fatalf("value formatting bypassed String: %q", got)
	}

	clone := byID[1].Clone()
	clone.Payload[0] = 'z'
	if byID[1].Payload[0] != 'a' {
		t.Fatalf("clone shares payload")
	}
}
