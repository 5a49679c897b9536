package config

import (
	"time"

	"github.com/danmuck/raknet/internal/auth"
	"github.com/danmuck/raknet/internal/peer"
	"github.com/danmuck/raknet/internal/protocol/handshake"
	"github.com/danmuck/raknet/internal/protocol/session"
)

const defaultRetries = 4

// Units turns the configured probe sizes into negotiation units. An empty
// list keeps the handshake defaults.
func (c PeerConfig) Units() []handshake.Unit {
	if len(c.MTUs) == 0 {
		return handshake.DefaultUnits()
	}
	retries := c.Retries
	if retries == 0 {
		retries = defaultRetries
	}
	units := make([]handshake.Unit, 0, len(c.MTUs))
	for _, mtu := range c.MTUs {
		units = append(units, handshake.Unit{Size: mtu, Retries: retries})
	}
	return handshake.SortUnits(units)
}

// SessionDefaults applies the file values over session.DefaultConfig.
func (c SessionConfig) SessionDefaults() session.Config {
	cfg := session.DefaultConfig()
	if c.ResendMS > 0 {
		cfg.ResendInterval = millis(c.ResendMS)
	}
	if c.UpdateMS > 0 {
		cfg.UpdateInterval = millis(c.UpdateMS)
	}
	if c.AckFlushMS > 0 {
		cfg.AckFlushInterval = millis(c.AckFlushMS)
	}
	if c.ForceAckFlush != nil {
		cfg.ForceAckFlush = *c.ForceAckFlush
	}
	if c.TimeoutMS > 0 {
		cfg.SessionTimeout = millis(c.TimeoutMS)
	}
	if c.MaxPendingSplits > 0 {
		cfg.MaxPendingSplits = c.MaxPendingSplits
	}
	if c.MaxNackAttempts > 0 {
		cfg.MaxNackAttempts = c.MaxNackAttempts
	}
	return cfg
}

// PeerConfig builds the runtime peer config. A non-empty deny list becomes
// the admission policy.
func (c PeerConfig) PeerConfig() (peer.Config, error) {
	cfg := peer.DefaultConfig()
	cfg.Name = c.Name
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.MaxPeers > 0 {
		cfg.MaxPeers = c.MaxPeers
	}
	cfg.Units = c.Units()
	cfg.Session = c.Session.SessionDefaults()
	if len(c.Deny) > 0 {
		deny, err := auth.ParseDenyList(c.Deny)
		if err != nil {
			return peer.Config{}, err
		}
		cfg.Admission = deny.Admit
	}
	return cfg, nil
}

// AdminValidator returns the admin token gate, or nil when no token is set.
func (c PeerConfig) AdminValidator() auth.Validator {
	if c.AdminToken == "" {
		return nil
	}
	return auth.StaticToken{Token: c.AdminToken}
}

func millis(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
