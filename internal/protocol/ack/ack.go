// Package ack encodes sets of datagram sequence numbers for ACK and NACK
// packets. On the wire consecutive numbers travel as ranges; in memory a Set
// only ever exposes individual sequence numbers.
package ack

import (
	"fmt"
	"sort"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/cursor"
)

// MaxRangeExpansion caps how many sequence numbers one packet may expand to,
// summed over all of its records.
const MaxRangeExpansion = 8192

const (
	headerSize    = 1 + 2
	singleSize    = 1 + 3
	rangeSize     = 1 + 3 + 3
	maxRecords    = 0xFFFF
	minPacketSize = headerSize + rangeSize
)

// Kind selects ACK or NACK.
type Kind uint8

const (
	KindAck Kind = iota
	KindNack
)

func (k Kind) ID() uint8 {
	if k == KindNack {
		return protocol.IDNack
	}
	return protocol.IDAck
}

func (k Kind) String() string {
	if k == KindNack {
		return "NACK"
	}
	return "ACK"
}

// Record is an inclusive range; Start == End is a single sequence number.
type Record struct {
	Start uint32
	End   uint32
}

func (r Record) Single() bool {
	return r.Start == r.End
}

// Set is a de-duplicated collection of sequence numbers.
type Set struct {
	seqs map[uint32]struct{}
}

func NewSet(seqs ...uint32) *Set {
	s := &Set{seqs: make(map[uint32]struct{}, len(seqs))}
	for _, seq := range seqs {
		s.seqs[seq] = struct{}{}
	}
	return s
}

func (s *Set) Add(seq uint32) {
	s.seqs[seq] = struct{}{}
}

// AddRange adds every number in [start, end].
func (s *Set) AddRange(start, end uint32) {
	for seq := start; ; seq++ {
		s.seqs[seq] = struct{}{}
		if seq == end {
			return
		}
	}
}

func (s *Set) Remove(seq uint32) {
	delete(s.seqs, seq)
}

func (s *Set) Contains(seq uint32) bool {
	_, ok := s.seqs[seq]
	return ok
}

func (s *Set) Len() int {
	return len(s.seqs)
}

func (s *Set) Reset() {
	s.seqs = make(map[uint32]struct{})
}

// Sequences returns the members in ascending order.
func (s *Set) Sequences() []uint32 {
	out := make([]uint32, 0, len(s.seqs))
	for seq := range s.seqs {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Records coalesces consecutive members into ranges. Expanding the result
// yields exactly Sequences().
func (s *Set) Records() []Record {
	seqs := s.Sequences()
	if len(seqs) == 0 {
		return nil
	}
	records := make([]Record, 0, len(seqs))
	cur := Record{Start: seqs[0], End: seqs[0]}
	for _, seq := range seqs[1:] {
		if seq == cur.End+1 {
			cur.End = seq
			continue
		}
		records = append(records, cur)
		cur = Record{Start: seq, End: seq}
	}
	return append(records, cur)
}

// Encode writes s as a single packet. Sets that do not fit one packet fail
// with ErrMalformedMessage; Packets splits them instead.
func Encode(kind Kind, s *Set) ([]byte, error) {
	records := s.Records()
	if len(records) > maxRecords {
		return nil, fmt.Errorf("%w: %d records exceed %d", protocol.ErrMalformedMessage, len(records), maxRecords)
	}
	if n := s.Len(); n > MaxRangeExpansion {
		return nil, fmt.Errorf("%w: %d sequences exceed %d", protocol.ErrMalformedMessage, n, MaxRangeExpansion)
	}
	return encodeRecords(kind, records), nil
}

// Packets encodes s as as many packets as needed. Each packet is at most mtu
// bytes, holds at most 0xFFFF records and expands to at most
// MaxRangeExpansion sequence numbers, so Decode accepts every one of them.
func Packets(kind Kind, s *Set, mtu int) [][]byte {
	mtu = max(mtu, minPacketSize)
	var (
		out      [][]byte
		batch    []Record
		size     = headerSize
		expanded = 0
	)
	flush := func() {
		if len(batch) > 0 {
			out = append(out, encodeRecords(kind, batch))
		}
		batch = batch[:0]
		size = headerSize
		expanded = 0
	}
	for _, r := range s.Records() {
		for _, part := range r.chunks(MaxRangeExpansion) {
			n := int(part.End-part.Start) + 1
			rs := part.wireSize()
			if size+rs > mtu || len(batch) == maxRecords || expanded+n > MaxRangeExpansion {
				flush()
			}
			batch = append(batch, part)
			size += rs
			expanded += n
		}
	}
	flush()
	return out
}

func (r Record) wireSize() int {
	if r.Single() {
		return singleSize
	}
	return rangeSize
}

// chunks splits r into ranges of at most n numbers.
func (r Record) chunks(n uint32) []Record {
	var out []Record
	for start := r.Start; ; {
		end := r.End
		if end-start >= n {
			end = start + n - 1
		}
		out = append(out, Record{Start: start, End: end})
		if end == r.End {
			return out
		}
		start = end + 1
	}
}

func encodeRecords(kind Kind, records []Record) []byte {
	b := cursor.New()
	b.WriteUint8(kind.ID())
	b.WriteUint16(uint16(len(records)))
	for _, r := range records {
		if r.Single() {
			b.WriteBool(false)
			b.WriteTriadLE(r.Start)
			continue
		}
		b.WriteBool(true)
		b.WriteTriadLE(r.Start)
		b.WriteTriadLE(r.End)
	}
	return b.Bytes()
}

// Decode parses an ACK or NACK packet and expands every range.
func Decode(raw []byte) (Kind, *Set, error) {
	b := cursor.From(raw)
	id, err := b.ReadUint8()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
	}
	var kind Kind
	switch id {
	case protocol.IDAck:
		kind = KindAck
	case protocol.IDNack:
		kind = KindNack
	default:
		return 0, nil, fmt.Errorf("%w: 0x%02x is not an ack", protocol.ErrUnknownPacket, id)
	}
	count, err := b.ReadUint16()
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", protocol.ErrMalformedMessage, err)
	}
	s := NewSet()
	expanded := 0
	for i := 0; i < int(count); i++ {
		isRange, err := b.ReadBool()
		if err != nil {
			return 0, nil, fmt.Errorf("%w: record %d: %v", protocol.ErrMalformedMessage, i, err)
		}
		start, err := b.ReadTriadLE()
		if err != nil {
			return 0, nil, fmt.Errorf("%w: record %d: %v", protocol.ErrMalformedMessage, i, err)
		}
		if !isRange {
			expanded++
			if expanded > MaxRangeExpansion {
				return 0, nil, fmt.Errorf("%w: packet expands past %d sequences", protocol.ErrMalformedMessage, MaxRangeExpansion)
			}
			s.Add(start)
			continue
		}
		end, err := b.ReadTriadLE()
		if err != nil {
			return 0, nil, fmt.Errorf("%w: record %d: %v", protocol.ErrMalformedMessage, i, err)
		}
		if end < start {
			return 0, nil, fmt.Errorf("%w: record %d range [%d, %d]", protocol.ErrMalformedMessage, i, start, end)
		}
		expanded += int(end-start) + 1
		if expanded > MaxRangeExpansion {
			return 0, nil, fmt.Errorf("%w: record %d expands packet past %d sequences", protocol.ErrMalformedMessage, i, MaxRangeExpansion)
		}
		s.AddRange(start, end)
	}
	if b.Remaining() != 0 {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes", protocol.ErrMalformedMessage, b.Remaining())
	}
	return kind, s, nil
}
