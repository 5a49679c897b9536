package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/raknet/internal/config"
	"github.com/danmuck/raknet/internal/peer"
)

// fileConfig carries the keys that accept duration strings such as "750ms".
// They win over the *_ms integers read by internal/config.
type fileConfig struct {
	DialTimeout string `toml:"dial_timeout"`
	Session     struct {
		Resend   string `toml:"resend"`
		Update   string `toml:"update"`
		AckFlush string `toml:"ack_flush"`
		Timeout  string `toml:"timeout"`
	} `toml:"session"`
	Backoff struct {
		Initial    string  `toml:"initial"`
		Max        string  `toml:"max"`
		Multiplier float64 `toml:"multiplier"`
		Jitter     bool    `toml:"jitter"`
	} `toml:"backoff"`
}

type runtimeConfig struct {
	File peer.Config
	Raw  config.PeerConfig
}

func loadRuntimeConfig(path string) (runtimeConfig, error) {
	raw, err := config.Load(path)
	if err != nil {
		return runtimeConfig{}, err
	}
	cfg, err := raw.PeerConfig()
	if err != nil {
		return runtimeConfig{}, err
	}

	var overlay fileConfig
	meta, err := toml.DecodeFile(path, &overlay)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load rakpeer config: %w", err)
	}

	durations := []struct {
		key  []string
		raw  string
		dest *time.Duration
	}{
		{[]string{"dial_timeout"}, overlay.DialTimeout, &cfg.DialTimeout},
		{[]string{"session", "resend"}, overlay.Session.Resend, &cfg.Session.ResendInterval},
		{[]string{"session", "update"}, overlay.Session.Update, &cfg.Session.UpdateInterval},
		{[]string{"session", "ack_flush"}, overlay.Session.AckFlush, &cfg.Session.AckFlushInterval},
		{[]string{"session", "timeout"}, overlay.Session.Timeout, &cfg.Session.SessionTimeout},
		{[]string{"backoff", "initial"}, overlay.Backoff.Initial, &cfg.Session.Backoff.InitialDelay},
		{[]string{"backoff", "max"}, overlay.Backoff.Max, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return runtimeConfig{}, fmt.Errorf("parse %s: %w", strings.Join(d.key, "."), err)
		}
		*d.dest = v
	}

	if meta.IsDefined("backoff", "multiplier") {
		cfg.Session.Backoff.Multiplier = overlay.Backoff.Multiplier
	}
	if meta.IsDefined("backoff", "jitter") {
		cfg.Session.Backoff.Jitter = overlay.Backoff.Jitter
	}
	if err := cfg.Session.Validate(); err != nil {
		return runtimeConfig{}, err
	}

	return runtimeConfig{File: cfg, Raw: raw}, nil
}
