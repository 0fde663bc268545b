package store

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/jcmexdev/storefront-sagas/internal/storefront/core/ports"
)

// newBreaker opens after failures consecutive failed exchanges and stays open
// for cooldown. Client errors (4xx) are answers, not outages, so they count as
// successes.
func newBreaker(name string, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "store:" + name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var te *ports.TransportError
			return errors.As(err, &te) && te.StatusCode >= 400 && te.StatusCode < 500
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("store circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}
