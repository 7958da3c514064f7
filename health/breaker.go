package health

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

type BreakerOptions struct {
	// Failures is the number of consecutive failed backend calls that opens the
	// breaker; 0 => 5.
	Failures uint32
	// Timeout is how long the breaker stays open before letting probe traffic
	// through; 0 => 30s.
	Timeout time.Duration
	// MaxRequests allowed while half-open; 0 => 1.
	MaxRequests uint32
	OnChange    func(name string, from, to gobreaker.State)
}

// Breaker derives availability from live traffic: the core reports each
// backend call and enough consecutive failures open the circuit, making the
// cache skip the backend until the open timeout elapses.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

var (
	_ Monitor  = (*Breaker)(nil)
	_ Reporter = (*Breaker)(nil)
)

func NewBreaker(name string, opts BreakerOptions) *Breaker {
	failures := opts.Failures
	if failures == 0 {
		failures = 5
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.MaxRequests,
		Timeout:     timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: opts.OnChange,
	}
	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker(st)}
}

func (b *Breaker) Start(context.Context) error { return nil }

// Available is false only while the circuit is open. State also moves an
// expired open circuit to half-open.
func (b *Breaker) Available() bool { return b.cb.State() != gobreaker.StateOpen }

// Report records one backend call. Calls the breaker would not admit
// (open, or half-open over MaxRequests) are not counted.
func (b *Breaker) Report(err error) {
	done, aerr := b.cb.Allow()
	if aerr != nil {
		return
	}
	done(err == nil)
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Close() error { return nil }
