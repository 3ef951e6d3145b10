package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker wraps gobreaker with defaults tuned for per-app health probes:
// a handful of consecutive failures opens the circuit, which then
// half-opens after the timeout.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// BreakerOption configures a Breaker.
type BreakerOption func(*gobreaker.Settings)

// WithFailureThreshold sets the consecutive failures that trip the circuit.
func WithFailureThreshold(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithOpenTimeout sets how long the circuit stays open before half-opening.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) { s.Timeout = d }
}

// WithStateChange installs a state transition callback.
func WithStateChange(fn func(name, from, to string)) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = func(name string, from, to gobreaker.State) {
			fn(name, from.String(), to.String())
		}
	}
}

// NewBreaker creates a circuit breaker named after the protected resource.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[any](settings), name: name}
}

// Execute runs fn through the breaker. Returns gobreaker.ErrOpenState
// while the circuit is open.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state as a string.
func (b *Breaker) State() string { return b.cb.State().String() }

// IsOpen reports whether calls are currently being rejected.
func (b *Breaker) IsOpen() bool { return b.cb.State() == gobreaker.StateOpen }
