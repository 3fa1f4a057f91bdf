package p2p

import "time"

// BackoffConfig controls the reconnect schedule for an outbound peer
// that drops. Mirrors the retry schedule used elsewhere in this
// codebase for undelivered messages: double the interval on every
// consecutive failure, capped, reset on a successful connection.
// Set on PoolConfig.Backoff so the daemon's configured
// reconnect/backoff constants reach the reconnect worker; the zero
// value falls back to DefaultBackoffConfig.
type BackoffConfig struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:       time.Second,
		Max:        5 * time.Minute,
		Multiplier: 2.0,
	}
}

func (c BackoffConfig) next(attempt int) time.Duration {
	d := c.Base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
		if d > c.Max {
			return c.Max
		}
	}
	return d
}
