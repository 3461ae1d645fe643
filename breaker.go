package libmemc

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker short-circuits dispatch to a server that keeps failing.
// Execute runs op unless the breaker is open; op's error feeds the
// breaker's failure statistics.
type CircuitBreaker interface {
	Execute(op func() error) error
}

// goBreaker adapts gobreaker to the CircuitBreaker interface.
type goBreaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// NewGoBreaker wraps a gobreaker configured with the given settings.
func NewGoBreaker(settings gobreaker.Settings) CircuitBreaker {
	return &goBreaker{cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

func (b *goBreaker) Execute(op func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// NewBreakerConfig returns a breaker factory for WithCircuitBreaker. The
// circuit opens once at least three requests have been observed within
// interval and 60% or more of them failed; after timeout it goes
// half-open and admits maxRequests probes.
func NewBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(addr string) CircuitBreaker {
	return func(addr string) CircuitBreaker {
		return NewGoBreaker(gobreaker.Settings{
			Name:        addr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && ratio >= 0.6
			},
		})
	}
}
