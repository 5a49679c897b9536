package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the delay before probe attempt N (1-based).
// With jitter the delay is scaled by a factor in [0.5, 1.5).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if attempt > 1 {
		delay *= math.Pow(math.Max(cfg.Multiplier, 1.0), float64(attempt-1))
	}
	if cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	return time.Duration(delay)
}
