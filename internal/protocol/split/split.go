// Package split fragments oversized payloads and reassembles fragments that
// share a split id.
package split

import (
	"fmt"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/message"
	"github.com/danmuck/raknet/internal/protocol/reliability"
)

// Assembly collects the fragments of one split message.
type Assembly struct {
	id          uint16
	count       uint32
	reliability reliability.Reliability
	fragments   map[uint32][]byte
}

// NewAssembly validates the declared fragment count against
// protocol.MaxSplitCount.
func NewAssembly(id uint16, count uint32, r reliability.Reliability) (*Assembly, error) {
	if count > protocol.MaxSplitCount {
		return nil, fmt.Errorf("%w: split count %d > %d", protocol.ErrSplitLimitExceeded, count, protocol.MaxSplitCount)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: split count 0", protocol.ErrMalformedMessage)
	}
	return &Assembly{
		id:          id,
		count:       count,
		reliability: r,
		fragments:   make(map[uint32][]byte, count),
	}, nil
}

func (a *Assembly) ID() uint16 {
	return a.id
}

func (a *Assembly) Count() uint32 {
	return a.count
}

// Received is the number of distinct fragment indices stored.
func (a *Assembly) Received() int {
	return len(a.fragments)
}

// Update stores one fragment. It returns the joined payload and true once
// every index in [0, count) has arrived.
func (a *Assembly) Update(m message.Encapsulated) ([]byte, bool, error) {
	if !m.Split || m.SplitID != a.id || m.SplitCount != a.count || m.Reliability != a.reliability {
		return nil, false, fmt.Errorf(
			"%w: assembly id=%d count=%d %s, fragment id=%d count=%d %s",
			protocol.ErrSplitMismatch, a.id, a.count, a.reliability, m.SplitID, m.SplitCount, m.Reliability,
		)
	}
	if m.SplitIndex >= a.count {
		return nil, false, fmt.Errorf("%w: index %d >= count %d", protocol.ErrSplitMismatch, m.SplitIndex, a.count)
	}
	a.fragments[m.SplitIndex] = m.Payload
	if uint32(len(a.fragments)) < a.count {
		return nil, false, nil
	}
	size := 0
	for _, p := range a.fragments {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for i := uint32(0); i < a.count; i++ {
		out = append(out, a.fragments[i]...)
	}
	return out, true, nil
}

// Fragment cuts payload into consecutive chunks of at most size bytes.
func Fragment(payload []byte, size int) [][]byte {
	if size <= 0 {
		return nil
	}
	n := (len(payload) + size - 1) / size
	chunks := make([][]byte, 0, n)
	for start := 0; start < len(payload); start += size {
		end := start + size
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[start:end])
	}
	return chunks
}
