package resilience

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a half-open probe.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32
	// OnStateChange, when set, is told about every transition after it is logged.
	OnStateChange func(name string, to gobreaker.State)
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		HalfOpenRequests:    1,
	}
}

// NewBreaker builds a named breaker that logs state transitions. isSuccessful
// may be nil; when set it decides which errors count against the breaker.
func NewBreaker(name string, cfg BreakerConfig, log *logger.Logger, isSuccessful func(error) bool) *gobreaker.CircuitBreaker {
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	threshold := cfg.ConsecutiveFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, to)
			}
		},
	})
}

// Call runs fn through cb, keeping the result typed.
func Call[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	if cb == nil {
		return fn()
	}
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	typed, _ := out.(T)
	return typed, nil
}
