package split

import (
	"github.com/danmuck/raknet/internal/protocol/message"
)

// DefaultMaxPending bounds concurrently open assemblies per session.
const DefaultMaxPending = 32

// Table owns the open assemblies of one session, keyed by split id.
// A completed assembly is removed the moment it yields its payload.
type Table struct {
	max   int
	items map[uint16]*Assembly
	order []uint16
}

func NewTable(max int) *Table {
	if max <= 0 {
		max = DefaultMaxPending
	}
	return &Table{
		max:   max,
		items: make(map[uint16]*Assembly),
	}
}

// Add routes a fragment to its assembly, creating it on first sight. When
// the table is full the oldest open assembly is evicted.
func (t *Table) Add(m message.Encapsulated) ([]byte, bool, error) {
	a, ok := t.items[m.SplitID]
	if !ok {
		var err error
		a, err = NewAssembly(m.SplitID, m.SplitCount, m.Reliability)
		if err != nil {
			return nil, false, err
		}
		if len(t.items) >= t.max {
			t.evictOldest()
		}
		t.items[m.SplitID] = a
		t.order = append(t.order, m.SplitID)
	}
	payload, done, err := a.Update(m)
	if err != nil || !done {
		return nil, false, err
	}
	t.remove(m.SplitID)
	return payload, true, nil
}

func (t *Table) Len() int {
	return len(t.items)
}

func (t *Table) Has(id uint16) bool {
	_, ok := t.items[id]
	return ok
}

// Reset drops every open assembly.
func (t *Table) Reset() {
	t.items = make(map[uint16]*Assembly)
	t.order = nil
}

func (t *Table) evictOldest() {
	if len(t.order) == 0 {
		return
	}
	oldest := t.order[0]
	t.order = t.order[1:]
	delete(t.items, oldest)
}

func (t *Table) remove(id uint16) {
	delete(t.items, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
