package peer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/raknet/internal/protocol/handshake"
	"github.com/danmuck/raknet/internal/protocol/session"
)

var (
	ErrClosed            = errors.New("peer: closed")
	ErrListenAddrMissing = errors.New("peer: listen address required")
)

// HandshakeObserver is told the outcome of every negotiation. role is
// "dial" or "accept"; outcome is "ok" or a protocol.Reason label.
type HandshakeObserver interface {
	Handshake(role, outcome string)
}

type nopHandshakeObserver struct{}

func (nopHandshakeObserver) Handshake(string, string) {}

type Config struct {
	Name     string
	GUID     uint64
	Listen   string
	Units    []handshake.Unit
	MaxMTU   int
	MaxPeers int
	// AcceptBacklog bounds connections waiting in Accept.
	AcceptBacklog int
	// InboxSize bounds undelivered messages per connection; overflow is dropped.
	InboxSize   int
	Session     session.Config
	Admission   handshake.Admission
	Handshakes  HandshakeObserver
	DialTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Listen:        "0.0.0.0:19132",
		Units:         handshake.DefaultUnits(),
		MaxPeers:      64,
		AcceptBacklog: 16,
		InboxSize:     256,
		Session:       session.DefaultConfig(),
		DialTimeout:   15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Units) == 0 {
		c.Units = d.Units
	}
	if c.MaxPeers <= 0 {
		c.MaxPeers = d.MaxPeers
	}
	if c.AcceptBacklog <= 0 {
		c.AcceptBacklog = d.AcceptBacklog
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.Handshakes == nil {
		c.Handshakes = nopHandshakeObserver{}
	}
	c.Session = c.Session.WithDefaults()
	return c
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return ErrListenAddrMissing
	}
	for _, u := range c.Units {
		if u.Size <= 0 {
			return fmt.Errorf("peer: invalid unit size %d", u.Size)
		}
	}
	return nil
}
