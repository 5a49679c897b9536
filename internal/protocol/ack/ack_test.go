package ack

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/danmuck/raknet/internal/protocol"
)

func mustEncode(t *testing.T, kind Kind, s *Set) []byte {
	t.Helper()
	raw, err := Encode(kind, s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

// wideRanges builds an ACK of n range records, each MaxRangeExpansion wide.
func wideRanges(n int) []byte {
	raw := []byte{protocol.IDAck, byte(n >> 8), byte(n)}
	for i := 0; i < n; i++ {
		start := uint32(i) * MaxRangeExpansion
		end := start + MaxRangeExpansion - 1
		raw = append(raw, 0x01,
			byte(start), byte(start>>8), byte(start>>16),
			byte(end), byte(end>>8), byte(end>>16))
	}
	return raw
}

func TestRecordsCoalesce(t *testing.T) {
	s := NewSet(9, 1, 2, 3, 5, 7, 8)
	want := []Record{{1, 3}, {5, 5}, {7, 9}}
	if got := s.Records(); !reflect.DeepEqual(got, want) {
		t.Fatalf("records got=%v want=%v", got, want)
	}
}

func TestRoundTripRecordMixes(t *testing.T) {
	cases := map[string][]uint32{
		"singleton": {42},
		"adjacent":  {10, 11, 12, 13},
		"disjoint":  {1, 5, 9, 100},
		"mixed":     {0, 1, 2, 4, 6, 7, 20},
		"unsorted":  {7, 3, 5, 4, 1, 2},
		"dupes":     {3, 3, 4, 4, 9},
	}
	for name, seqs := range cases {
		in := NewSet(seqs...)
		kind, out, err := Decode(mustEncode(t, KindNack, in))
		if err != nil {
			t.Fatalf("%s decode: %v", name, err)
		}
		if kind != KindNack {
			t.Fatalf("%s kind=%s", name, kind)
		}
		if !reflect.DeepEqual(out.Sequences(), in.Sequences()) {
			t.Fatalf("%s got=%v want=%v", name, out.Sequences(), in.Sequences())
		}
	}
}

func TestRoundTripRandomOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		in := NewSet()
		for i := 0; i < 64; i++ {
			in.Add(uint32(rng.Intn(200)))
		}
		_, out, err := Decode(mustEncode(t, KindAck, in))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !reflect.DeepEqual(out.Sequences(), in.Sequences()) {
			t.Fatalf("iteration %d mismatch", iter)
		}
		// decode, simplify, encode reproduces the same bytes
		if !bytes.Equal(mustEncode(t, KindAck, out), mustEncode(t, KindAck, in)) {
			t.Fatalf("iteration %d re-encode mismatch", iter)
		}
	}
}

func TestEncodeWireLayout(t *testing.T) {
	raw := mustEncode(t, KindAck, NewSet(1, 2, 3, 10))
	want := []byte{
		protocol.IDAck, 0x00, 0x02,
		0x01, 0x01, 0x00, 0x00, 0x03, 0x00, 0x00,
		0x00, 0x0A, 0x00, 0x00,
	}
	if !bytes.Equal(raw, want) {
		t.Fatalf("wire got=%x want=%x", raw, want)
	}
}

func TestDecodeExpandsRanges(t *testing.T) {
	raw := []byte{protocol.IDNack, 0x00, 0x01, 0x01, 0x05, 0x00, 0x00, 0x08, 0x00, 0x00}
	_, s, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(s.Sequences(), []uint32{5, 6, 7, 8}) {
		t.Fatalf("expanded got=%v", s.Sequences())
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"short count":    {protocol.IDAck, 0x00},
		"missing record": {protocol.IDAck, 0x00, 0x01},
		"reversed range": {protocol.IDAck, 0x00, 0x01, 0x01, 0x09, 0x00, 0x00, 0x02, 0x00, 0x00},
		"huge range":     {protocol.IDAck, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF},
		"trailing bytes": {protocol.IDAck, 0x00, 0x00, 0x01},
	}
	for name, raw := range cases {
		if _, _, err := Decode(raw); !errors.Is(err, protocol.ErrMalformedMessage) {
			t.Fatalf("%s: expected ErrMalformedMessage, got %v", name, err)
		}
	}
	if _, _, err := Decode([]byte{0x84, 0, 0}); !errors.Is(err, protocol.ErrUnknownPacket) {
		t.Fatalf("expected ErrUnknownPacket, got %v", err)
	}
}

func TestDecodeBoundsTotalExpansion(t *testing.T) {
	_, s, err := Decode(wideRanges(1))
	if err != nil {
		t.Fatalf("one full-width range rejected: %v", err)
	}
	if s.Len() != MaxRangeExpansion {
		t.Fatalf("expanded=%d", s.Len())
	}

	raw := wideRanges(212)
	if len(raw) > protocol.MaximumMTU {
		t.Fatalf("packet of %d bytes exceeds mtu", len(raw))
	}
	if _, _, err := Decode(raw); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage for %d-record packet, got %v", 212, err)
	}

	// singles count toward the same budget: [0, 8191] plus 9000
	over := wideRanges(1)
	over[2] = 0x02
	over = append(over, 0x00, 0x28, 0x23, 0x00)
	if _, _, err := Decode(over); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected single past the budget to fail, got %v", err)
	}
}

func TestEncodeRejectsOversizedSet(t *testing.T) {
	s := NewSet()
	s.AddRange(0, MaxRangeExpansion)
	if _, err := Encode(KindAck, s); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
}

func TestPacketsRespectMTUAndDecode(t *testing.T) {
	const mtu = 400
	in := NewSet()
	// every other number: no coalescing, one single record each
	for seq := uint32(0); seq < 2000; seq += 2 {
		in.Add(seq)
	}
	// plus one range wider than a packet may expand to
	in.AddRange(100000, 100000+3*MaxRangeExpansion)

	packets := Packets(KindNack, in, mtu)
	if len(packets) < 2 {
		t.Fatalf("expected a split, got %d packet(s)", len(packets))
	}
	out := NewSet()
	for i, raw := range packets {
		if len(raw) > mtu {
			t.Fatalf("packet %d is %d bytes, mtu %d", i, len(raw), mtu)
		}
		kind, s, err := Decode(raw)
		if err != nil {
			t.Fatalf("packet %d decode: %v", i, err)
		}
		if kind != KindNack {
			t.Fatalf("packet %d kind=%s", i, kind)
		}
		for _, seq := range s.Sequences() {
			out.Add(seq)
		}
	}
	if !reflect.DeepEqual(out.Sequences(), in.Sequences()) {
		t.Fatalf("union of packets differs: got %d sequences want %d", out.Len(), in.Len())
	}
	if got := Packets(KindAck, NewSet(), mtu); len(got) != 0 {
		t.Fatalf("empty set produced %d packets", len(got))
	}
}

func TestEmptySet(t *testing.T) {
	_, s, err := Decode(mustEncode(t, KindAck, NewSet()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty set")
	}
}
