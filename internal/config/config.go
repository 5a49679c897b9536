package config

import (
	"fmt"
	"net/netip"
	"os"
	"strings"

	"github.com/danmuck/raknet/internal/auth"
	"github.com/danmuck/raknet/internal/protocol"
	"github.com/pelletier/go-toml/v2"
)

// PeerConfig is the on-disk shape of a rakpeer node. Durations are given in
// milliseconds; zero keeps the session default.
type PeerConfig struct {
	Name        string        `toml:"name"`
	Listen      string        `toml:"listen"`
	Remote      string        `toml:"remote"`
	AdminAddr   string        `toml:"admin_addr"`
	AdminToken  string        `toml:"admin_token"`
	CorsOrigins []string      `toml:"cors_origins"`
	MaxPeers    int           `toml:"max_peers"`
	Deny        []string      `toml:"deny"`
	MTUs        []int         `toml:"mtus"`
	Retries     int           `toml:"retries"`
	Session     SessionConfig `toml:"session"`
}

type SessionConfig struct {
	ResendMS         int64 `toml:"resend_ms"`
	UpdateMS         int64 `toml:"update_ms"`
	AckFlushMS       int64 `toml:"ack_flush_ms"`
	ForceAckFlush    *bool `toml:"force_ack_flush"`
	TimeoutMS        int64 `toml:"timeout_ms"`
	MaxPendingSplits int   `toml:"max_pending_splits"`
	MaxNackAttempts  int   `toml:"max_nack_attempts"`
}

func Load(path string) (PeerConfig, error) {
	var cfg PeerConfig
	if err := loadToml(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "rakpeer"
	}
	if cfg.Listen == "" {
		cfg.Listen = "0.0.0.0:19132"
	}
	if err := Validate(cfg); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func Validate(cfg PeerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("peer config missing name")
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("peer config missing listen")
	}
	if _, err := netip.ParseAddrPort(strings.TrimSpace(cfg.Listen)); err != nil {
		return fmt.Errorf("peer config listen invalid: %w", err)
	}
	if remote := strings.TrimSpace(cfg.Remote); remote != "" {
		if _, err := netip.ParseAddrPort(remote); err != nil {
			return fmt.Errorf("peer config remote invalid: %w", err)
		}
	}
	for i, mtu := range cfg.MTUs {
		if mtu < protocol.MinimumMTU || mtu > protocol.MaximumMTU {
			return fmt.Errorf("mtus[%d]=%d outside [%d, %d]", i, mtu, protocol.MinimumMTU, protocol.MaximumMTU)
		}
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if _, err := auth.ParseDenyList(cfg.Deny); err != nil {
		return err
	}
	if cfg.MaxPeers < 0 {
		return fmt.Errorf("max_peers must not be negative")
	}
	return ValidateSession(cfg.Session)
}

func ValidateSession(cfg SessionConfig) error {
	for key, v := range map[string]int64{
		"resend_ms":    cfg.ResendMS,
		"update_ms":    cfg.UpdateMS,
		"ack_flush_ms": cfg.AckFlushMS,
		"timeout_ms":   cfg.TimeoutMS,
	} {
		if v < 0 {
			return fmt.Errorf("session.%s must not be negative", key)
		}
	}
	if cfg.MaxPendingSplits < 0 || cfg.MaxNackAttempts < 0 {
		return fmt.Errorf("session limits must not be negative")
	}
	return nil
}
