package session

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/ack"
	"github.com/danmuck/raknet/internal/protocol/frame"
	"github.com/danmuck/raknet/internal/protocol/message"
	"github.com/danmuck/raknet/internal/protocol/reliability"
	"github.com/danmuck/raknet/internal/protocol/split"
	"github.com/rs/zerolog/log"
)

// Handler receives application payloads. Calls happen synchronously inside
// engine methods and must not re-enter the same Engine.
type Handler interface {
	OnMessage(channel uint8, payload []byte)
	OnAcknowledged(channel uint8, payload []byte)
}

// ErrorHandler is an optional Handler extension. It is told about message
// level errors that do not abort the rest of the datagram.
type ErrorHandler interface {
	OnError(err error)
}

// Sender puts one raw datagram on the wire.
type Sender func([]byte) error

// Stats is a snapshot of engine counters.
type Stats struct {
	State             State
	MTU               int
	FramesSent        uint64
	FramesReceived    uint64
	FramesResent      uint64
	DuplicateFrames   uint64
	MessagesQueued    uint64
	MessagesDelivered uint64
	DuplicateMessages uint64
	AcksSent          uint64
	NacksSent         uint64
	AcksReceived      uint64
	NacksReceived     uint64
	PendingResends    int
	PendingSplits     int
	QueuedMessages    int
	LastReceive       time.Time
}

// receipt collects acknowledgments for the fragments of one split message
// that asked for an ack receipt.
type receipt struct {
	channel   uint8
	payload   []byte
	remaining uint32
}

// Engine is the reliability state machine of one session.
type Engine struct {
	cfg     Config
	send    Sender
	handler Handler
	state   State

	lastReceive  time.Time
	lastAckFlush time.Time

	nextSequence uint32
	nextMessage  uint32
	nextSplit    uint16
	sendOrder    [protocol.MaxChannels]uint32
	sendSequence [protocol.MaxChannels]uint32
	queue        []message.Encapsulated
	resend       *ResendTable
	receipts     map[uint16]*receipt

	received        bool
	highestSequence uint32
	seenFrames      map[uint32]struct{}
	hasMessage      bool
	highestMessage  uint32
	seenMessages    map[uint32]struct{}
	acks            *ack.Set
	missing         map[uint32]int
	ackDue          bool
	splits          *split.Table
	receiveOrder    [protocol.MaxChannels]uint32
	reorder         [protocol.MaxChannels]map[uint32]message.Encapsulated
	receiveSequence [protocol.MaxChannels]uint32
	sequenced       [protocol.MaxChannels]bool

	stats Stats
}

type nopHandler struct{}

func (nopHandler) OnMessage(uint8, []byte)      {}
func (nopHandler) OnAcknowledged(uint8, []byte) {}

// New builds a Connected engine. cfg is completed with WithDefaults first.
func New(cfg Config, send Sender, handler Handler) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if send == nil {
		return nil, fmt.Errorf("%w: nil sender", ErrInvalidConfig)
	}
	if handler == nil {
		handler = nopHandler{}
	}
	now := cfg.Now()
	e := &Engine{
		cfg:          cfg,
		send:         send,
		handler:      handler,
		state:        StateConnected,
		lastReceive:  now,
		lastAckFlush: now,
		resend:       NewResendTable(),
		receipts:     make(map[uint16]*receipt),
		seenFrames:   make(map[uint32]struct{}),
		seenMessages: make(map[uint32]struct{}),
		acks:         ack.NewSet(),
		missing:      make(map[uint32]int),
		splits:       split.NewTable(cfg.MaxPendingSplits),
	}
	for i := range e.reorder {
		e.reorder[i] = make(map[uint32]message.Encapsulated)
	}
	return e, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) State() State {
	return e.state
}

// PendingResends lists the frames still awaiting acknowledgment.
func (e *Engine) PendingResends() []PendingFrame {
	return e.resend.List()
}

func (e *Engine) Stats() Stats {
	s := e.stats
	s.State = e.state
	s.MTU = e.cfg.MTU
	s.PendingResends = e.resend.Len()
	s.PendingSplits = e.splits.Len()
	s.QueuedMessages = len(e.queue)
	s.LastReceive = e.lastReceive
	return s
}

// Queue accepts one application payload for delivery on channel. Payloads
// that do not fit a single frame are fragmented here; every fragment shares
// the message index, the order index and a fresh split id.
func (e *Engine) Queue(r reliability.Reliability, channel uint8, payload []byte) error {
	if e.state != StateConnected {
		return protocol.ErrSessionClosed
	}
	if !r.Valid() {
		return fmt.Errorf("%w: code %d", protocol.ErrUnknownReliability, uint8(r))
	}
	if channel >= protocol.MaxChannels {
		return fmt.Errorf("%w: %d >= %d", protocol.ErrInvalidChannel, channel, protocol.MaxChannels)
	}

	room := e.cfg.MTU - frame.HeaderSize
	var parts [][]byte
	if message.HeaderSize(r, false)+len(payload) > room || len(payload) > message.MaxPayload {
		chunk := min(room-message.HeaderSize(r, true), message.MaxPayload)
		parts = split.Fragment(payload, chunk)
		if len(parts) > protocol.MaxSplitCount {
			return fmt.Errorf("%w: %d bytes needs %d fragments", protocol.ErrSplitLimitExceeded, len(payload), len(parts))
		}
	}

	m := message.Encapsulated{Reliability: r, OrderChannel: channel}
	if r.IsReliable() {
		m.MessageIndex = e.nextMessage
		e.nextMessage++
	}
	switch {
	case r.IsOrdered():
		m.OrderIndex = e.sendOrder[channel]
		e.sendOrder[channel]++
	case r.IsSequenced():
		m.OrderIndex = e.sendSequence[channel]
		e.sendSequence[channel]++
	}
	e.stats.MessagesQueued++

	if parts == nil {
		m.Payload = bytes.Clone(payload)
		e.queue = append(e.queue, m)
		return nil
	}

	id := e.nextSplit
	e.nextSplit++
	m.Split = true
	m.SplitID = id
	m.SplitCount = uint32(len(parts))
	for i, part := range parts {
		fragment := m
		fragment.SplitIndex = uint32(i)
		fragment.Payload = bytes.Clone(part)
		e.queue = append(e.queue, fragment)
	}
	if r.WantsAck() {
		e.receipts[id] = &receipt{
			channel:   channel,
			payload:   bytes.Clone(payload),
			remaining: uint32(len(parts)),
		}
	}
	log.Debug().
		Uint16("split_id", id).
		Int("fragments", len(parts)).
		Int("bytes", len(payload)).
		Msg("session.Queue split")
	return nil
}

// Update runs one tick: timeout check, queue drain, ACK/NACK flush and at
// most one timed resend. Send failures are joined into the returned error;
// they never stop the tick.
func (e *Engine) Update() error {
	if e.state != StateConnected {
		return nil
	}
	now := e.cfg.Now()
	if e.cfg.SessionTimeout > 0 && now.Sub(e.lastReceive) > e.cfg.SessionTimeout {
		silent := now.Sub(e.lastReceive)
		e.close("timeout")
		log.Info().Uint64("peer_guid", e.cfg.PeerGUID).Dur("silent", silent).Msg("session timed out")
		return fmt.Errorf("%w: nothing received for %s", protocol.ErrSessionTimeout, silent)
	}
	err := errors.Join(
		e.flushQueue(now),
		e.flushAcks(now),
		e.resendOldest(now),
	)
	e.prune()
	return err
}

// Disconnect drops every table. Later calls are no-ops.
func (e *Engine) Disconnect() {
	if e.state == StateDisconnected {
		return
	}
	e.close("disconnect")
}

func (e *Engine) close(reason string) {
	e.state = StateDisconnected
	e.queue = nil
	e.resend.Reset()
	clear(e.receipts)
	clear(e.seenFrames)
	clear(e.seenMessages)
	clear(e.missing)
	e.acks.Reset()
	e.splits.Reset()
	for i := range e.reorder {
		clear(e.reorder[i])
	}
	e.cfg.Observer.Closed(reason)
}

func (e *Engine) flushQueue(now time.Time) error {
	var errs []error
	for len(e.queue) > 0 {
		f := frame.Frame{Sequence: e.nextSequence}
		for len(e.queue) > 0 && f.Fits(&e.queue[0], e.cfg.MTU) {
			f.Messages = append(f.Messages, e.queue[0])
			e.queue = e.queue[1:]
		}
		if len(f.Messages) == 0 {
			// Queue fragments anything larger than a frame, so this only
			// happens if a message was built by hand.
			errs = append(errs, fmt.Errorf("%w: %d byte message exceeds mtu %d",
				protocol.ErrMalformedMessage, e.queue[0].Size(), e.cfg.MTU))
			e.queue = e.queue[1:]
			continue
		}
		raw, err := f.Encode()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.nextSequence++
		e.resend.Upsert(PendingFrame{
			Frame:         f,
			Attempts:      1,
			QueuedAt:      now,
			LastAttemptAt: now,
		})
		e.stats.FramesSent++
		errs = append(errs, e.transmit(KindFrame, raw))
	}
	e.queue = nil
	return errors.Join(errs...)
}

func (e *Engine) flushAcks(now time.Time) error {
	if !e.ackDue && now.Sub(e.lastAckFlush) < e.cfg.AckFlushInterval {
		return nil
	}
	e.ackDue = false
	e.lastAckFlush = now

	var errs []error
	if e.acks.Len() > 0 {
		for _, raw := range ack.Packets(ack.KindAck, e.acks, e.cfg.MTU) {
			e.stats.AcksSent++
			errs = append(errs, e.transmit(KindAck, raw))
		}
		e.acks.Reset()
	}
	if len(e.missing) > 0 {
		nacks := ack.NewSet()
		for seq, attempts := range e.missing {
			nacks.Add(seq)
			if attempts+1 >= e.cfg.MaxNackAttempts {
				delete(e.missing, seq)
				continue
			}
			e.missing[seq] = attempts + 1
		}
		for _, raw := range ack.Packets(ack.KindNack, nacks, e.cfg.MTU) {
			e.stats.NacksSent++
			errs = append(errs, e.transmit(KindNack, raw))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) resendOldest(now time.Time) error {
	item, ok := e.resend.Oldest(now, e.cfg.ResendInterval)
	if !ok {
		return nil
	}
	return e.retransmit(item, now)
}

// retransmit resends the reliable part of a stored frame under its original
// sequence number. A frame with nothing reliable left leaves the table.
func (e *Engine) retransmit(item PendingFrame, now time.Time) error {
	seq := item.Frame.Sequence
	stripped := item.Frame.WithoutUnreliables()
	if len(stripped.Messages) < len(item.Frame.Messages) {
		e.forgetReceipts(item.Frame)
	}
	if len(stripped.Messages) == 0 {
		e.resend.Remove(seq)
		e.cfg.Observer.Dropped("unreliable_expired")
		return nil
	}
	raw, err := stripped.Encode()
	if err != nil {
		return err
	}
	item.Frame = stripped
	e.resend.Upsert(item)
	item, _ = e.resend.MarkAttempt(seq, now)
	e.stats.FramesResent++
	log.Debug().Uint32("seq", seq).Int("attempts", item.Attempts).Msg("session.retransmit")
	return e.transmit(KindResend, raw)
}

// forgetReceipts drops receipts of split messages whose unreliable
// fragments will never be resent.
func (e *Engine) forgetReceipts(f frame.Frame) {
	for _, m := range f.Messages {
		if m.Split && !m.Reliability.IsReliable() {
			delete(e.receipts, m.SplitID)
		}
	}
}

func (e *Engine) transmit(kind string, raw []byte) error {
	e.cfg.Observer.Sent(kind, len(raw))
	if err := e.send(raw); err != nil {
		log.Debug().Err(err).Str("kind", kind).Msg("session.transmit")
		return fmt.Errorf("session: send %s: %w", kind, err)
	}
	return nil
}

// prune forgets duplicate-filter entries that fell out of the window.
// Anything older than the window is treated as a duplicate on arrival.
func (e *Engine) prune() {
	window := e.cfg.DuplicateWindow
	if uint32(len(e.seenFrames)) > window && e.highestSequence >= window {
		floor := e.highestSequence - window
		for seq := range e.seenFrames {
			if seq < floor {
				delete(e.seenFrames, seq)
			}
		}
	}
	if uint32(len(e.seenMessages)) > window && e.highestMessage >= window {
		floor := e.highestMessage - window
		for idx := range e.seenMessages {
			if idx < floor {
				delete(e.seenMessages, idx)
			}
		}
	}
}
