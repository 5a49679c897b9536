package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/raknet/internal/protocol"
	"github.com/danmuck/raknet/internal/protocol/split"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior for handshake probes.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines per-session reliability tunables.
type Config struct {
	MTU  int
	GUID uint64
	// PeerGUID is the GUID the remote side announced during negotiation.
	PeerGUID         uint64
	ResendInterval   time.Duration
	UpdateInterval   time.Duration
	AckFlushInterval time.Duration
	ForceAckFlush    bool
	SessionTimeout   time.Duration
	MaxPendingSplits int
	MaxNackAttempts  int
	DuplicateWindow  uint32
	Backoff          BackoffConfig
	Observer         Observer
	Now              func() time.Time
}

// DefaultConfig returns the reference cadence: 50ms ticks, ACK flush at most
// every 3s unless forced, 1s resend interval and a 10s silence timeout.
func DefaultConfig() Config {
	return Config{
		MTU:              protocol.MaximumMTU,
		ResendInterval:   time.Second,
		UpdateInterval:   50 * time.Millisecond,
		AckFlushInterval: 3000 * time.Millisecond,
		ForceAckFlush:    true,
		SessionTimeout:   10 * time.Second,
		MaxPendingSplits: split.DefaultMaxPending,
		MaxNackAttempts:  8,
		DuplicateWindow:  4096,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills every zero-valued tunable from DefaultConfig. MTU,
// GUIDs, ForceAckFlush and a zero SessionTimeout are left as given except
// that a zero MTU becomes the maximum.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.MTU == 0 {
		c.MTU = d.MTU
	}
	if c.ResendInterval <= 0 {
		c.ResendInterval = d.ResendInterval
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = d.UpdateInterval
	}
	if c.AckFlushInterval <= 0 {
		c.AckFlushInterval = d.AckFlushInterval
	}
	if c.MaxPendingSplits <= 0 {
		c.MaxPendingSplits = d.MaxPendingSplits
	}
	if c.MaxNackAttempts <= 0 {
		c.MaxNackAttempts = d.MaxNackAttempts
	}
	if c.DuplicateWindow == 0 {
		c.DuplicateWindow = d.DuplicateWindow
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c Config) Validate() error {
	if c.MTU < protocol.MinimumMTU || c.MTU > protocol.MaximumMTU {
		return fmt.Errorf("%w: mtu %d outside [%d, %d]", ErrInvalidConfig, c.MTU, protocol.MinimumMTU, protocol.MaximumMTU)
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("%w: negative session timeout", ErrInvalidConfig)
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier %.2f < 1", ErrInvalidConfig, c.Backoff.Multiplier)
	}
	return nil
}
