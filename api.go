package nscache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/nscache/backend"
)

// Statistics is a point-in-time view of backend counters.
type Statistics = backend.Statistics

// NodeStatistics is the per-server breakdown of Statistics.
type NodeStatistics = backend.NodeStatistics

// Cache is a typed view over a named instance.
//
// Every operation degrades instead of failing: when the backend is down,
// erroring, or holds a value that cannot be decoded, reads miss and writes are
// skipped (logged and reported through Hooks). The only errors surfaced are
// caller mistakes (negative TTL) and batch protocol faults (*CardinalityError).
type Cache[V any] interface {
	// Name is the instance name (the key namespace).
	Name() string

	Get(ctx context.Context, key string) (V, bool)

	// GetMany returns one entry per distinct requested key. Duplicate keys
	// collapse into one entry.
	GetMany(ctx context.Context, keys []string) (map[string]Lookup[V], error)

	// Put stores value under key. ttl == 0 uses the instance default TTL
	// (no expiry when that is 0 too); ttl < 0 is ErrNegativeTTL.
	Put(ctx context.Context, key string, value V, ttl time.Duration) error

	PutMany(ctx context.Context, entries map[string]V, ttl time.Duration) error

	// Remove deletes key. Removing an absent key is fine.
	Remove(ctx context.Context, key string)

	// Clear flushes the backend where supported. Shared remote backends may
	// decline; that is logged, not returned.
	Clear(ctx context.Context)

	Statistics(ctx context.Context) Statistics

	// Close releases the instance when the view owns it (New); views handed
	// out by a Factory are closed with the factory.
	Close(ctx context.Context) error
}

// Lookup is the per-key outcome of GetMany.
type Lookup[V any] struct {
	Value V
	Found bool
}

// Values keeps the hits of a GetMany result.
func Values[V any](m map[string]Lookup[V]) map[string]V {
	out := make(map[string]V, len(m))
	for k, l := range m {
		if l.Found {
			out[k] = l.Value
		}
	}
	return out
}

// New builds a standalone instance and a typed view that owns it.
func New[V any](ctx context.Context, opts Options) (Cache[V], error) {
	in, err := NewInstance(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &cache[V]{in: in, owned: true}, nil
}

// Of returns a typed view over an existing instance. Closing the view does not
// close the instance.
func Of[V any](in *Instance) Cache[V] {
	return &cache[V]{in: in}
}
