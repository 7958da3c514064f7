package nscache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/nscache/backend"
)

// nopCache is handed out by disabled factories: every read misses, every
// write is dropped, nothing touches a network.
type nopCache[V any] struct {
	name string
}

func (n nopCache[V]) Name() string { return n.name }

func (nopCache[V]) Get(context.Context, string) (V, bool) {
	var zero V
	return zero, false
}

func (nopCache[V]) GetMany(_ context.Context, keys []string) (map[string]Lookup[V], error) {
	out := make(map[string]Lookup[V], len(keys))
	for _, k := range keys {
		out[k] = Lookup[V]{}
	}
	return out, nil
}

func (nopCache[V]) Put(_ context.Context, _ string, _ V, ttl time.Duration) error {
	if ttl < 0 {
		return ErrNegativeTTL
	}
	return nil
}

func (nopCache[V]) PutMany(_ context.Context, _ map[string]V, ttl time.Duration) error {
	if ttl < 0 {
		return ErrNegativeTTL
	}
	return nil
}

func (nopCache[V]) Remove(context.Context, string)        {}
func (nopCache[V]) Clear(context.Context)                 {}
func (nopCache[V]) Statistics(context.Context) Statistics { return backend.Unavailable() }
func (nopCache[V]) Close(context.Context) error           { return nil }
