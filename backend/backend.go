// Package backend defines the storage contract behind an nscache instance.
//
// A Backend sees wire keys only; namespacing is done by the cache core before
// any call reaches it. Values are opaque: in-process backends may store the
// caller's value as is, byte-oriented backends serialize it and return a
// *serial.Payload on reads, which the core decodes into the caller's type.
//
// Batch reads come in two shapes, and a backend implements at most one:
//   - PositionalGetter: values returned in request order; a length mismatch is
//     a protocol fault.
//   - KeyedGetter: values returned by key; absent keys are misses, keys that
//     were not requested are a protocol fault.
//
// Backends implementing neither get single-key fan-out from the core.
package backend

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by operations a backend deliberately declines
// (e.g. Clear on a shared remote store). The core logs it and moves on.
var ErrNotSupported = errors.New("backend: operation not supported")

// Backend is the minimal store every adapter provides. Must be safe for
// concurrent use.
type Backend interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) (any, bool, error)

	// Put stores value. ttl == 0 means the backend default (usually no expiry).
	// Returns ok=false when the store rejected the write (pressure, admission).
	Put(ctx context.Context, key string, value any, ttl time.Duration) (ok bool, err error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear flushes every entry, or returns ErrNotSupported.
	Clear(ctx context.Context) error

	// Close releases client handles. Repeated calls are no-ops.
	Close(ctx context.Context) error
}

// PositionalGetter fetches many keys in one round-trip; out[i] corresponds to
// keys[i] and is nil on miss.
type PositionalGetter interface {
	GetPositional(ctx context.Context, keys []string) ([]any, error)
}

// KeyedGetter fetches many keys in one round-trip; keys with no value are
// omitted from the result.
type KeyedGetter interface {
	GetKeyed(ctx context.Context, keys []string) (map[string]any, error)
}

// MultiPutter writes many entries at once. Without it the core issues one Put
// per entry.
type MultiPutter interface {
	PutMany(ctx context.Context, items map[string]any, ttl time.Duration) error
}

// StatsReporter reports server-side counters. Backends without it report
// unavailable statistics.
type StatsReporter interface {
	Stats(ctx context.Context) (Statistics, error)
}

// Pinger checks the backend is reachable; used by polling health monitors.
type Pinger interface {
	Ping(ctx context.Context) error
}
