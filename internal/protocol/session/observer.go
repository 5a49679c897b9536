package session

import "github.com/danmuck/raknet/internal/protocol/reliability"

// Packet kinds reported to an Observer.
const (
	KindFrame  = "frame"
	KindResend = "resend"
	KindAck    = "ack"
	KindNack   = "nack"
)

// Observer receives engine counters as they happen. Implementations must not
// call back into the engine.
type Observer interface {
	Sent(kind string, bytes int)
	Received(kind string, bytes int)
	Delivered(r reliability.Reliability, bytes int)
	Dropped(reason string)
	Closed(reason string)
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) Sent(string, int)                       {}
func (NopObserver) Received(string, int)                   {}
func (NopObserver) Delivered(reliability.Reliability, int) {}
func (NopObserver) Dropped(string)                         {}
func (NopObserver) Closed(string)                          {}
