package session

import (
	"sort"
	"time"

	"github.com/danmuck/raknet/internal/protocol/frame"
)

// PendingFrame tracks one sent frame awaiting acknowledgment.
type PendingFrame struct {
	Frame         frame.Frame
	Attempts      int
	QueuedAt      time.Time
	LastAttemptAt time.Time
}

// Age is the time since the frame was last put on the wire.
func (p PendingFrame) Age(now time.Time) time.Duration {
	return now.Sub(p.LastAttemptAt)
}

// ResendTable stores sent-but-unacknowledged frames by sequence number.
// It is owned by one Engine and is not safe for concurrent use.
type ResendTable struct {
	items map[uint32]PendingFrame
}

func NewResendTable() *ResendTable {
	return &ResendTable{
		items: make(map[uint32]PendingFrame),
	}
}

func (t *ResendTable) Upsert(item PendingFrame) {
	t.items[item.Frame.Sequence] = item
}

// MarkAttempt records one more transmission of seq at the given time.
func (t *ResendTable) MarkAttempt(seq uint32, at time.Time) (PendingFrame, bool) {
	item, ok := t.items[seq]
	if !ok {
		return PendingFrame{}, false
	}
	item.Attempts++
	item.LastAttemptAt = at
	t.items[seq] = item
	return item, true
}

func (t *ResendTable) Remove(seq uint32) {
	delete(t.items, seq)
}

func (t *ResendTable) Get(seq uint32) (PendingFrame, bool) {
	item, ok := t.items[seq]
	return item, ok
}

func (t *ResendTable) Len() int {
	return len(t.items)
}

func (t *ResendTable) Reset() {
	clear(t.items)
}

// Oldest returns the entry least recently sent among those idle for at
// least interval. Ties go to the lower sequence number.
func (t *ResendTable) Oldest(now time.Time, interval time.Duration) (PendingFrame, bool) {
	var (
		best  PendingFrame
		found bool
	)
	for _, item := range t.items {
		if item.Age(now) < interval {
			continue
		}
		if !found ||
			item.LastAttemptAt.Before(best.LastAttemptAt) ||
			(item.LastAttemptAt.Equal(best.LastAttemptAt) && item.Frame.Sequence < best.Frame.Sequence) {
			best = item
			found = true
		}
	}
	return best, found
}

// List returns every entry ordered by sequence number.
func (t *ResendTable) List() []PendingFrame {
	out := make([]PendingFrame, 0, len(t.items))
	for _, item := range t.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Frame.Sequence < out[j].Frame.Sequence
	})
	return out
}
