package session

import (
	"math/rand"
	"time"
)

// ReconnectDelay returns how long the agent waits before connect attempt
// number attempt (1-based, counted since the last established session).
// The first attempt waits InitialDelay. Jitter spreads the delay over
// [d/2, 3d/2) and never exceeds MaxDelay.
func ReconnectDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 || cfg.InitialDelay <= 0 {
		return 0
	}
	mult := cfg.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}

	delay := float64(cfg.InitialDelay)
	ceiling := float64(cfg.MaxDelay)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if ceiling > 0 && delay >= ceiling {
			delay = ceiling
			break
		}
	}
	if cfg.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	if ceiling > 0 && delay > ceiling {
		delay = ceiling
	}
	return time.Duration(delay)
}
