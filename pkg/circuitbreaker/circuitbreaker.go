package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jwalitptl/consult-api/pkg/logger"
)

type Settings struct {
	Name string
	// MaxRequests is how many calls pass while half-open.
	MaxRequests uint32
	// Interval resets the closed-state counts; zero never resets them.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker. Defaults to 5.
	ConsecutiveFailures uint32
	// IsSuccessful reports errors that say nothing about the downstream's
	// health, e.g. the caller giving up. Nil counts every error.
	IsSuccessful func(err error) bool
}

// New builds a breaker that trips on consecutive failures and logs
// every state change.
func New(settings Settings, log *logger.Logger) *gobreaker.CircuitBreaker {
	failures := settings.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         settings.Name,
		MaxRequests:  settings.MaxRequests,
		Interval:     settings.Interval,
		Timeout:      settings.Timeout,
		IsSuccessful: settings.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.ZL.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
