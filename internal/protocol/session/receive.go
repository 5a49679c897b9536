package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/ack"
	"github.com/danmuck/raknet/internal/protocol/frame"
	"github.com/danmuck/raknet/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

// OnRawDatagram routes one connected-mode datagram by its id byte. A
// malformed datagram is dropped whole and its error returned; the session
// carries on.
func (e *Engine) OnRawDatagram(raw []byte) error {
	if e.state != StateConnected {
		return protocol.ErrSessionClosed
	}
	if len(raw) == 0 {
		return e.reject(fmt.Errorf("%w: empty datagram", protocol.ErrMalformedMessage))
	}
	id := raw[0]
	switch {
	case protocol.IsFrameID(id):
		f, err := frame.Decode(raw)
		if err != nil {
			return e.reject(err)
		}
		e.cfg.Observer.Received(KindFrame, len(raw))
		e.OnFrame(f)
		return nil
	case id == protocol.IDAck || id == protocol.IDNack:
		kind, set, err := ack.Decode(raw)
		if err != nil {
			return e.reject(err)
		}
		if kind == ack.KindAck {
			e.cfg.Observer.Received(KindAck, len(raw))
			e.OnAckSet(set)
			return nil
		}
		e.cfg.Observer.Received(KindNack, len(raw))
		return e.OnNackSet(set)
	default:
		return e.reject(fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownPacket, id))
	}
}

func (e *Engine) reject(err error) error {
	e.cfg.Observer.Dropped(protocol.Reason(err))
	log.Debug().Err(err).Uint64("peer_guid", e.cfg.PeerGUID).Msg("session.OnRawDatagram drop")
	return err
}

// OnFrame processes one decoded frame. Duplicates are discarded but
// acknowledged again so a lost ACK cannot pin the sender's resend entry.
func (e *Engine) OnFrame(f frame.Frame) {
	if e.state != StateConnected {
		return
	}
	e.lastReceive = e.cfg.Now()
	seq := f.Sequence
	e.acks.Add(seq)
	if e.cfg.ForceAckFlush {
		e.ackDue = true
	}
	if e.isDuplicateFrame(seq) {
		e.stats.DuplicateFrames++
		e.cfg.Observer.Dropped(protocol.Reason(protocol.ErrDuplicate))
		return
	}
	e.seenFrames[seq] = struct{}{}
	e.stats.FramesReceived++
	e.trackGap(seq)

	for _, m := range f.Messages {
		if err := e.handleMessage(m); err != nil {
			e.cfg.Observer.Dropped(protocol.Reason(err))
			log.Debug().Err(err).Uint32("seq", seq).Msg("session.OnFrame message dropped")
			if eh, ok := e.handler.(ErrorHandler); ok {
				eh.OnError(err)
			}
		}
	}
}

func (e *Engine) isDuplicateFrame(seq uint32) bool {
	if _, ok := e.seenFrames[seq]; ok {
		return true
	}
	window := e.cfg.DuplicateWindow
	return e.received && e.highestSequence >= window && seq < e.highestSequence-window
}

// trackGap records sequence numbers skipped by a new highest frame as
// missing. A late arrival only fills its own gap; it never creates one.
func (e *Engine) trackGap(seq uint32) {
	if e.received && seq <= e.highestSequence {
		delete(e.missing, seq)
		return
	}
	start := uint32(0)
	if e.received {
		start = e.highestSequence + 1
	}
	if seq-start > e.cfg.DuplicateWindow {
		start = seq - e.cfg.DuplicateWindow
	}
	for gap := start; gap < seq; gap++ {
		e.missing[gap] = 0
	}
	e.received = true
	e.highestSequence = seq
}

func (e *Engine) handleMessage(m message.Encapsulated) error {
	r := m.Reliability
	if r.Indexed() && m.OrderChannel >= protocol.MaxChannels {
		return fmt.Errorf("%w: %d >= %d", protocol.ErrInvalidChannel, m.OrderChannel, protocol.MaxChannels)
	}
	if m.Split {
		payload, done, err := e.splits.Add(m)
		if err != nil || !done {
			return err
		}
		m.Payload = payload
		m.Split = false
		m.SplitCount, m.SplitID, m.SplitIndex = 0, 0, 0
	}
	if r.IsReliable() {
		if e.isDuplicateMessage(m.MessageIndex) {
			e.stats.DuplicateMessages++
			e.cfg.Observer.Dropped(protocol.Reason(protocol.ErrDuplicate))
			return nil
		}
		e.seenMessages[m.MessageIndex] = struct{}{}
		if !e.hasMessage || m.MessageIndex > e.highestMessage {
			e.hasMessage = true
			e.highestMessage = m.MessageIndex
		}
	}

	switch {
	case r.IsOrdered():
		e.deliverOrdered(m)
	case r.IsSequenced():
		e.deliverSequenced(m)
	default:
		e.deliver(m)
	}
	return nil
}

func (e *Engine) isDuplicateMessage(index uint32) bool {
	if _, ok := e.seenMessages[index]; ok {
		return true
	}
	window := e.cfg.DuplicateWindow
	return e.hasMessage && e.highestMessage >= window && index < e.highestMessage-window
}

// deliverOrdered buffers m and releases the contiguous run starting at the
// next expected order index.
func (e *Engine) deliverOrdered(m message.Encapsulated) {
	ch := m.OrderChannel
	if m.OrderIndex < e.receiveOrder[ch] {
		return
	}
	e.reorder[ch][m.OrderIndex] = m
	for {
		next, ok := e.reorder[ch][e.receiveOrder[ch]]
		if !ok {
			return
		}
		delete(e.reorder[ch], e.receiveOrder[ch])
		e.receiveOrder[ch]++
		e.deliver(next)
	}
}

// deliverSequenced delivers m only if it is newer than everything already
// delivered on its channel.
func (e *Engine) deliverSequenced(m message.Encapsulated) {
	ch := m.OrderChannel
	if e.sequenced[ch] && m.OrderIndex <= e.receiveSequence[ch] {
		e.cfg.Observer.Dropped("stale_sequenced")
		return
	}
	e.sequenced[ch] = true
	e.receiveSequence[ch] = m.OrderIndex
	e.deliver(m)
}

func (e *Engine) deliver(m message.Encapsulated) {
	e.stats.MessagesDelivered++
	e.cfg.Observer.Delivered(m.Reliability, len(m.Payload))
	e.handler.OnMessage(m.OrderChannel, m.Payload)
}

// OnAckSet retires acknowledged frames and fires ack receipts. A split
// message's receipt fires once its last fragment is acknowledged.
func (e *Engine) OnAckSet(s *ack.Set) {
	if e.state != StateConnected {
		return
	}
	e.lastReceive = e.cfg.Now()
	e.stats.AcksReceived++
	for _, seq := range s.Sequences() {
		item, ok := e.resend.Get(seq)
		if !ok {
			continue
		}
		e.resend.Remove(seq)
		for _, m := range item.Frame.Messages {
			if !m.Reliability.WantsAck() {
				continue
			}
			if !m.Split {
				e.handler.OnAcknowledged(m.OrderChannel, m.Payload)
				continue
			}
			rc, ok := e.receipts[m.SplitID]
			if !ok {
				continue
			}
			rc.remaining--
			if rc.remaining == 0 {
				delete(e.receipts, m.SplitID)
				e.handler.OnAcknowledged(rc.channel, rc.payload)
			}
		}
	}
}

// OnNackSet resends every named frame now, outside the tick cadence.
func (e *Engine) OnNackSet(s *ack.Set) error {
	if e.state != StateConnected {
		return nil
	}
	now := e.cfg.Now()
	e.lastReceive = now
	e.stats.NacksReceived++
	var errs []error
	for _, seq := range s.Sequences() {
		item, ok := e.resend.Get(seq)
		if !ok {
			continue
		}
		errs = append(errs, e.retransmit(item, now))
	}
	return errors.Join(errs...)
}
