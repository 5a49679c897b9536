package peer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/handshake"
	"github.com/danmuck/raknet/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

const readBufferSize = 2048

// Peer owns one UDP socket and every session running over it.
type Peer struct {
	cfg       Config
	udp       *net.UDPConn
	responder *handshake.Responder

	mu      sync.RWMutex
	conns   map[netip.AddrPort]*Conn
	dialing map[netip.AddrPort]chan []byte

	accept    chan *Conn
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds cfg.Listen and starts answering. The peer closes when ctx is
// done or Close is called.
func Listen(ctx context.Context, cfg Config) (*Peer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.GUID == 0 {
		guid, err := handshake.NewGUID()
		if err != nil {
			return nil, err
		}
		cfg.GUID = guid
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("peer: resolve %q: %w", cfg.Listen, err)
	}
	udp, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	p := &Peer{
		cfg:     cfg,
		udp:     udp,
		conns:   make(map[netip.AddrPort]*Conn),
		dialing: make(map[netip.AddrPort]chan []byte),
		accept:  make(chan *Conn, cfg.AcceptBacklog),
		closed:  make(chan struct{}),
	}
	p.responder, err = handshake.NewResponder(handshake.ResponderConfig{
		GUID:   cfg.GUID,
		MaxMTU: cfg.MaxMTU,
		Policy: p.admit,
	})
	if err != nil {
		_ = udp.Close()
		return nil, err
	}
	log.Info().
		Str("peer", cfg.Name).
		Str("addr", udp.LocalAddr().String()).
		Uint64("guid", cfg.GUID).
		Msg("peer listening")

	p.wg.Add(1)
	go p.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.closed:
		}
	}()
	return p, nil
}

func (p *Peer) GUID() uint64 {
	return p.cfg.GUID
}

func (p *Peer) Name() string {
	return p.cfg.Name
}

func (p *Peer) Addr() netip.AddrPort {
	return p.udp.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Accept waits for the next inbound session.
func (p *Peer) Accept(ctx context.Context) (*Conn, error) {
	select {
	case c := <-p.accept:
		return c, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Dial negotiates a session with addr. Probes are spaced by the session
// backoff; a reply triggers the next probe at once.
func (p *Peer) Dial(ctx context.Context, addr netip.AddrPort) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	defer cancel()
	addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())

	replies := make(chan []byte, 8)
	p.mu.Lock()
	if _, busy := p.dialing[addr]; busy {
		p.mu.Unlock()
		return nil, fmt.Errorf("peer: dial to %s already in progress", addr)
	}
	if _, ok := p.conns[addr]; ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", protocol.ErrAlreadyConnected, addr)
	}
	p.dialing[addr] = replies
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.dialing, addr)
		p.mu.Unlock()
	}()

	n, err := handshake.NewNegotiator(p.cfg.GUID, addr, p.cfg.Units)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

probe:
	for !n.Ready() {
		raw, err := n.Next()
		if err != nil {
			p.cfg.Handshakes.Handshake("dial", protocol.Reason(err))
			return nil, err
		}
		if _, err := p.udp.WriteToUDPAddrPort(raw, addr); err != nil {
			return nil, fmt.Errorf("peer: probe %s: %w", addr, err)
		}
		timer := time.NewTimer(session.NextBackoffDelay(p.cfg.Session.Backoff, n.Attempt(), rng))
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				p.cfg.Handshakes.Handshake("dial", "timeout")
				return nil, ctx.Err()
			case <-p.closed:
				timer.Stop()
				return nil, ErrClosed
			case <-timer.C:
				continue probe
			case reply := <-replies:
				if err := n.Handle(reply); err != nil {
					var he *handshake.HandshakeError
					if errors.As(err, &he) {
						timer.Stop()
						p.cfg.Handshakes.Handshake("dial", protocol.Reason(err))
						return nil, err
					}
					log.Debug().Err(err).Str("remote", addr.String()).Msg("peer.Dial ignored reply")
					continue
				}
				timer.Stop()
				continue probe
			}
		}
	}

	result, err := n.Result()
	if err != nil {
		return nil, err
	}
	c, err := p.register(result)
	if err != nil {
		return nil, err
	}
	p.cfg.Handshakes.Handshake("dial", "ok")
	log.Info().Str("remote", addr.String()).Int("mtu", result.MTU).Uint64("peer_guid", result.PeerGUID).Msg("peer dialed")
	return c, nil
}

// Sessions snapshots every live connection ordered by remote address.
func (p *Peer) Sessions() []SessionInfo {
	p.mu.RLock()
	conns := make([]*Conn, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()
	out := make([]SessionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Remote < out[j].Remote
	})
	return out
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.closed)
		conns := make([]*Conn, 0, len(p.conns))
		for _, c := range p.conns {
			conns = append(conns, c)
		}
		p.mu.Unlock()
		err = p.udp.Close()
		for _, c := range conns {
			c.shutdown(ErrClosed)
		}
		p.wg.Wait()
		log.Info().Str("peer", p.cfg.Name).Msg("peer closed")
	})
	return err
}

func (p *Peer) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := p.udp.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-p.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Warn().Err(err).Msg("peer.readLoop read")
			continue
		}
		if n == 0 {
			continue
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		p.route(netip.AddrPortFrom(from.Addr().Unmap(), from.Port()), raw)
	}
}

func (p *Peer) route(from netip.AddrPort, raw []byte) {
	id := raw[0]
	p.mu.RLock()
	conn := p.conns[from]
	replies := p.dialing[from]
	p.mu.RUnlock()

	if !handshake.IsOffline(id) {
		if conn == nil {
			log.Debug().Str("remote", from.String()).Uint8("id", id).Msg("peer.route no session")
			return
		}
		conn.receive(raw)
		return
	}
	if replies != nil {
		select {
		case replies <- raw:
		default:
		}
		return
	}
	p.answer(from, raw)
}

func (p *Peer) answer(from netip.AddrPort, raw []byte) {
	reply, result, err := p.responder.Handle(from, raw)
	if reply != nil {
		if _, werr := p.udp.WriteToUDPAddrPort(reply, from); werr != nil {
			log.Warn().Err(werr).Str("remote", from.String()).Msg("peer.answer write")
		}
	}
	if err != nil {
		log.Debug().Err(err).Str("remote", from.String()).Msg("peer.answer rejected")
		if protocol.Classify(err) == protocol.CategoryHandshake {
			p.cfg.Handshakes.Handshake("accept", protocol.Reason(err))
		}
		return
	}
	if result == nil {
		return
	}
	p.mu.RLock()
	existing := p.conns[from]
	p.mu.RUnlock()
	if existing != nil {
		// Request2 retransmitted after our Reply2 was lost.
		return
	}
	c, err := p.register(*result)
	if err != nil {
		log.Warn().Err(err).Str("remote", from.String()).Msg("peer.answer establish")
		return
	}
	p.cfg.Handshakes.Handshake("accept", "ok")
	log.Info().Str("remote", from.String()).Int("mtu", result.MTU).Uint64("peer_guid", result.PeerGUID).Msg("peer accepted")
	select {
	case p.accept <- c:
	default:
		log.Warn().Str("remote", from.String()).Msg("peer accept backlog full, closing session")
		c.shutdown(protocol.ErrServerFull)
	}
}

// admit is the responder policy: a known address may repeat its own
// Request2, a different GUID on that address is already connected, and the
// session table has a hard cap.
func (p *Peer) admit(guid uint64, from netip.AddrPort) error {
	p.mu.RLock()
	existing, known := p.conns[from]
	count := len(p.conns)
	p.mu.RUnlock()
	if known {
		if existing.PeerGUID() == guid {
			return nil
		}
		return protocol.ErrAlreadyConnected
	}
	if count >= p.cfg.MaxPeers {
		return protocol.ErrServerFull
	}
	if p.cfg.Admission != nil {
		return p.cfg.Admission(guid, from)
	}
	return nil
}

func (p *Peer) register(result handshake.Result) (*Conn, error) {
	c, err := newConn(p, result)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	select {
	case <-p.closed:
		p.mu.Unlock()
		return nil, ErrClosed
	default:
	}
	p.conns[result.Peer] = c
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		c.run()
	}()
	return c, nil
}

func (p *Peer) forget(c *Conn) {
	p.mu.Lock()
	if p.conns[c.remote] == c {
		delete(p.conns, c.remote)
	}
	p.mu.Unlock()
}
