// Package ratelimit throttles requests per (endpoint, client) with a fixed
// request window and a progressive lockout once the window is exceeded.
package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"
)

// Config describes one throttling policy.
type Config struct {
	MaxRequests int           // requests allowed per window
	Window      time.Duration // window length
	BaseBackoff time.Duration // lockout for the first violation
	MaxBackoff  time.Duration // lockout ceiling
	Inactivity  time.Duration // quiet period after which the violation count resets
}

// DefaultConfig is 15 requests a minute, 10s doubling lockout capped at
// two minutes, forgotten after ten quiet minutes.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 15,
		Window:      time.Minute,
		BaseBackoff: 10 * time.Second,
		MaxBackoff:  120 * time.Second,
		Inactivity:  10 * time.Minute,
	}
}

// IsZero reports whether c carries no settings.
func (c Config) IsZero() bool { return c == (Config{}) }

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRequests <= 0 {
		c.MaxRequests = d.MaxRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Inactivity <= 0 {
		c.Inactivity = d.Inactivity
	}
	return c
}

// Backoff returns min(base * 2^(blocks-1), max).
func (c Config) Backoff(blocks int) time.Duration {
	if blocks < 1 {
		blocks = 1
	}
	d := c.BaseBackoff
	for i := 1; i < blocks; i++ {
		if d >= c.MaxBackoff {
			break
		}
		d *= 2
	}
	if d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// Result is the verdict for one request.
type Result struct {
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetAt           time.Time `json:"reset_at"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
}

// Limiter decides whether a request may proceed.  A zero cfg selects the
// limiter's own policy.
type Limiter interface {
	Check(ctx context.Context, endpoint, clientID string, cfg Config) (Result, error)
}

// Key joins endpoint and client identity.
func Key(endpoint, clientID string) string {
	if clientID == "" {
		clientID = "anon"
	}
	return strings.Join([]string{endpoint, clientID}, "|")
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
