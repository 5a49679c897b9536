package peer

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/handshake"
	"github.com/danmuck/raknet/internal/protocol/reliability"
	"github.com/danmuck/raknet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Message is one payload delivered by a connection.
type Message struct {
	Channel uint8
	Payload []byte
}

// Conn is one live session with a remote peer.
type Conn struct {
	peer   *Peer
	remote netip.AddrPort
	result handshake.Result

	mu     sync.Mutex
	engine *session.Engine

	inbox     chan Message
	done      chan struct{}
	closeOnce sync.Once
	err       error
	acked     uint64
}

// SessionInfo is a read-only view of a Conn for status reporting.
type SessionInfo struct {
	Remote   string        `json:"remote"`
	PeerGUID uint64        `json:"peer_guid"`
	MTU      int           `json:"mtu"`
	State    string        `json:"state"`
	Stats    session.Stats `json:"stats"`
	Acked    uint64        `json:"acked"`
}

func newConn(p *Peer, result handshake.Result) (*Conn, error) {
	c := &Conn{
		peer:   p,
		remote: result.Peer,
		result: result,
		inbox:  make(chan Message, p.cfg.InboxSize),
		done:   make(chan struct{}),
	}
	engine, err := handshake.Establish(result, p.cfg.Session, c.write, c)
	if err != nil {
		return nil, err
	}
	c.engine = engine
	return c, nil
}

func (c *Conn) RemoteAddr() netip.AddrPort {
	return c.remote
}

func (c *Conn) PeerGUID() uint64 {
	return c.result.PeerGUID
}

func (c *Conn) MTU() int {
	return c.result.MTU
}

// Messages yields delivered payloads. The channel is closed once the
// connection shuts down; buffered messages are still drained first.
func (c *Conn) Messages() <-chan Message {
	return c.inbox
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err is why the connection closed, or nil while it is open or after Close.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Send queues payload; it goes out on the next tick.
func (c *Conn) Send(r reliability.Reliability, channel uint8, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine.Queue(r, channel, payload)
}

func (c *Conn) Info() SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.engine.Stats()
	return SessionInfo{
		Remote:   c.remote.String(),
		PeerGUID: c.result.PeerGUID,
		MTU:      c.result.MTU,
		State:    stats.State.String(),
		Stats:    stats,
		Acked:    c.acked,
	}
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

// OnMessage runs under c.mu, inside an engine call.
func (c *Conn) OnMessage(channel uint8, payload []byte) {
	select {
	case c.inbox <- Message{Channel: channel, Payload: payload}:
	default:
		log.Warn().Str("remote", c.remote.String()).Uint8("channel", channel).Msg("peer.Conn inbox full, message dropped")
	}
}

func (c *Conn) OnAcknowledged(channel uint8, payload []byte) {
	c.acked++
	log.Debug().Str("remote", c.remote.String()).Uint8("channel", channel).Int("bytes", len(payload)).Msg("peer.Conn acknowledged")
}

func (c *Conn) OnError(err error) {
	log.Debug().Err(err).Str("remote", c.remote.String()).Msg("peer.Conn message error")
}

func (c *Conn) write(raw []byte) error {
	_, err := c.peer.udp.WriteToUDPAddrPort(raw, c.remote)
	return err
}

func (c *Conn) receive(raw []byte) {
	c.mu.Lock()
	err := c.engine.OnRawDatagram(raw)
	c.mu.Unlock()
	if err != nil && !errors.Is(err, protocol.ErrSessionClosed) {
		log.Debug().Err(err).Str("remote", c.remote.String()).Msg("peer.Conn drop")
	}
}

// run ticks the engine until the session ends.
func (c *Conn) run() {
	ticker := time.NewTicker(c.engine.Config().UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.engine.Update()
			c.mu.Unlock()
			if err == nil {
				continue
			}
			if protocol.Classify(err) == protocol.CategorySession {
				log.Info().Err(err).Str("remote", c.remote.String()).Msg("peer.Conn session ended")
				c.shutdown(err)
				return
			}
			log.Debug().Err(err).Str("remote", c.remote.String()).Msg("peer.Conn update")
		}
	}
}

func (c *Conn) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.engine.Disconnect()
		c.err = cause
		c.mu.Unlock()
		c.peer.forget(c)
		close(c.done)
		// A disconnected engine never calls OnMessage again.
		close(c.inbox)
	})
}
