package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/ack"
	"github.com/danmuck/raknet/internal/protocol/frame"
	"github.com/danmuck/raknet/internal/protocol/message"
)

type delivery struct {
	channel uint8
	payload []byte
}

type recorder struct {
	messages []delivery
	acked    []delivery
	errs     []error
}

func (r *recorder) OnMessage(channel uint8, payload []byte) {
	r.messages = append(r.messages, delivery{channel, bytes.Clone(payload)})
}

func (r *recorder) OnAcknowledged(channel uint8, payload []byte) {
	r.acked = append(r.acked, delivery{channel, bytes.Clone(payload)})
}

func (r *recorder) OnError(err error) {
	r.errs = append(r.errs, err)
}

type wire struct {
	sent [][]byte
	fail error
}

func (w *wire) send(raw []byte) error {
	if w.fail != nil {
		return w.fail
	}
	w.sent = append(w.sent, bytes.Clone(raw))
	return nil
}

func (w *wire) take() [][]byte {
	out := w.sent
	w.sent = nil
	return out
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type harness struct {
	engine *Engine
	wire   *wire
	rec    *recorder
	clock  *clock
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		wire:  &wire{},
		rec:   &recorder{},
		clock: &clock{now: time.Unix(1700000000, 0)},
	}
	cfg := DefaultConfig()
	cfg.MTU = 1024
	cfg.Now = h.clock.Now
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(cfg, h.wire.send, h.rec)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = e
	return h
}

func encodeFrame(t *testing.T, seq uint32, msgs ...message.Encapsulated) []byte {
	t.Helper()
	f := frame.Frame{Sequence: seq, Messages: msgs}
	raw, err := f.Encode()
	if err != nil {
		t.Fatalf("encode frame %d: %v", seq, err)
	}
	return raw
}

func decodeFrames(t *testing.T, raws [][]byte) []frame.Frame {
	t.Helper()
	var out []frame.Frame
	for _, raw := range raws {
		if !protocol.IsFrameID(raw[0]) {
			continue
		}
		f, err := frame.Decode(raw)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, f)
	}
	return out
}

// ackSets returns every ACK or NACK set of the given kind in raws.
func ackSets(t *testing.T, raws [][]byte, want ack.Kind) []*ack.Set {
	t.Helper()
	var out []*ack.Set
	for _, raw := range raws {
		if raw[0] != want.ID() {
			continue
		}
		kind, set, err := ack.Decode(raw)
		if err != nil {
			t.Fatalf("decode %s: %v", want, err)
		}
		if kind == want {
			out = append(out, set)
		}
	}
	return out
}

// pump delivers every datagram queued on src into dst.
func pump(t *testing.T, src, dst *harness) {
	t.Helper()
	for _, raw := range src.wire.take() {
		if err := dst.engine.OnRawDatagram(raw); err != nil {
			t.Fatalf("deliver datagram 0x%02x: %v", raw[0], err)
		}
	}
}
