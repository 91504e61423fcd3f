package resilience

import "time"

type Config struct {
	// MaxRetries is the number of extra attempts after the first call.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration

	// BreakerEnabled guards each attempt with a per-collaborator circuit breaker.
	// An open circuit counts as a transient attempt; it never shortens the retry budget.
	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
		CallTimeout: 5 * time.Minute,

		BreakerEnabled:          false,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.MaxRetries <= 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.BaseBackoff <= 0 {
		out.BaseBackoff = def.BaseBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = def.MaxBackoff
	}
	if out.MaxBackoff < out.BaseBackoff {
		out.MaxBackoff = out.BaseBackoff
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = def.CallTimeout
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}

// Backoff returns the wait before the retry that follows the given attempt number
// (1-based): BaseBackoff * 2^attempt, capped at MaxBackoff.
func (c Config) Backoff(attempt int) time.Duration {
	wait := c.BaseBackoff
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return wait
}
