// Package health tracks backend availability. The cache core asks a Monitor
// before every backend call and short-circuits to a miss / no-op when it
// reports the backend as down.
package health

import (
	"context"
)

// Monitor reports whether a backend should be used. Available must be cheap
// and safe for concurrent use; it is called on every cache operation.
type Monitor interface {
	// Start begins monitoring. Called once, when the cache instance is built.
	Start(ctx context.Context) error
	Available() bool
	Close() error
}

// Reporter is implemented by monitors that learn from live traffic. The core
// reports the outcome of every backend call (nil on success).
type Reporter interface {
	Report(err error)
}

// Always is a monitor that never reports the backend as down.
type Always struct{}

var _ Monitor = Always{}

func (Always) Start(context.Context) error { return nil }
func (Always) Available() bool             { return true }
func (Always) Close() error                { return nil }
