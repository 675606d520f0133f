// Package resilience guards calls to the directions provider with a circuit
// breaker and bounded retries, and tracks provider health for the ops
// endpoints.
package resilience

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig controls when a provider circuit opens and how it recovers.
type BreakerConfig struct {
	// Name identifies the provider in logs and the registry.
	Name string

	// HalfOpenRequests is the number of requests let through while half-open.
	HalfOpenRequests uint32

	// Window clears the closed-state counts periodically. Zero keeps them
	// until the next state change.
	Window time.Duration

	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration

	// MinRequests and FailureRatio decide when a closed circuit trips.
	MinRequests  uint32
	FailureRatio float64

	// ConsecutiveFailures trips the circuit regardless of the ratio.
	// Zero disables the rule.
	ConsecutiveFailures uint32

	Logger zerolog.Logger
}

// DefaultBreakerConfig returns the breaker used for directions providers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:           name,
		HalfOpenRequests: 1,
		Cooldown:       30 * time.Second,
		MinRequests:    5,
		FailureRatio:   0.5,
		Logger:         zerolog.Nop(),
	}
}

// ShouldTrip reports whether counts observed in the closed state open the
// circuit.
func (c BreakerConfig) ShouldTrip(counts gobreaker.Counts) bool {
	if c.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[*http.Response] {
	logger := cfg.Logger
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{ //nolint:bodyclose // type param, not response
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: cfg.ShouldTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Warn()
			}
			event.
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider circuit changed state")
		},
	})
}
