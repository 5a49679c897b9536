// Package reliability is the closed catalog of delivery guarantees a message
// can request.
package reliability

import (
	"fmt"

	"github.com/danmuck/raknet/internal/protocol"
)

// Reliability identifies a delivery guarantee by its one-byte wire code.
type Reliability uint8

const (
	Unreliable Reliability = iota
	UnreliableSequenced
	Reliable
	ReliableOrdered
	ReliableSequenced
	UnreliableWithAckReceipt
	UnreliableSequencedWithAckReceipt
	ReliableWithAckReceipt
	ReliableOrderedWithAckReceipt
	ReliableSequencedWithAckReceipt
)

type traits struct {
	name      string
	reliable  bool
	ordered   bool
	sequenced bool
	ack       bool
}

var catalog = [...]traits{
	Unreliable:                        {"UNRELIABLE", false, false, false, false},
	UnreliableSequenced:               {"UNRELIABLE_SEQUENCED", false, false, true, false},
	Reliable:                          {"RELIABLE", true, false, false, false},
	ReliableOrdered:                   {"RELIABLE_ORDERED", true, true, false, false},
	ReliableSequenced:                 {"RELIABLE_SEQUENCED", true, false, true, false},
	UnreliableWithAckReceipt:          {"UNRELIABLE_WITH_ACK_RECEIPT", false, false, false, true},
	UnreliableSequencedWithAckReceipt: {"UNRELIABLE_SEQUENCED_WITH_ACK_RECEIPT", false, false, true, true},
	ReliableWithAckReceipt:            {"RELIABLE_WITH_ACK_RECEIPT", true, false, false, true},
	ReliableOrderedWithAckReceipt:     {"RELIABLE_ORDERED_WITH_ACK_RECEIPT", true, true, false, true},
	ReliableSequencedWithAckReceipt:   {"RELIABLE_SEQUENCED_WITH_ACK_RECEIPT", true, false, true, true},
}

// All lists every variant in code order.
func All() []Reliability {
	out := make([]Reliability, len(catalog))
	for i := range catalog {
		out[i] = Reliability(i)
	}
	return out
}

// FromCode resolves a wire code. Unknown codes are an error, never a default.
func FromCode(code uint8) (Reliability, error) {
	if int(code) >= len(catalog) {
		return 0, fmt.Errorf("%w: code %d", protocol.ErrUnknownReliability, code)
	}
	return Reliability(code), nil
}

func (r Reliability) Code() uint8 {
	return uint8(r)
}

// Valid reports whether r is one of the catalog variants.
func (r Reliability) Valid() bool {
	return int(r) < len(catalog)
}

func (r Reliability) IsReliable() bool {
	return r.Valid() && catalog[r].reliable
}

func (r Reliability) IsOrdered() bool {
	return r.Valid() && catalog[r].ordered
}

func (r Reliability) IsSequenced() bool {
	return r.Valid() && catalog[r].sequenced
}

// WantsAck reports whether the sender asked to be told when the message is
// acknowledged by the peer.
func (r Reliability) WantsAck() bool {
	return r.Valid() && catalog[r].ack
}

// Indexed reports whether messages of this class carry an order index and
// channel on the wire.
func (r Reliability) Indexed() bool {
	return r.IsOrdered() || r.IsSequenced()
}

// WithoutAckReceipt maps an ack-receipt variant to its base guarantee.
func (r Reliability) WithoutAckReceipt() Reliability {
	if r >= UnreliableWithAckReceipt && r.Valid() {
		return r - UnreliableWithAckReceipt
	}
	return r
}

func (r Reliability) String() string {
	if !r.Valid() {
		return fmt.Sprintf("RELIABILITY(%d)", uint8(r))
	}
	return catalog[r].name
}
