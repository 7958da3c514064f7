// Package memory is an in-process backend over dgraph-io/ristretto.
// Values are stored by reference; nothing is serialized.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/nscache/backend"
)

const nodeName = "local"

// Memory stores references in a ristretto cache. Every entry costs 1, so
// MaxItems is an item budget.
type Memory struct {
	c       *rc.Cache
	metrics bool
	once    sync.Once
}

var (
	_ backend.Backend       = (*Memory)(nil)
	_ backend.StatsReporter = (*Memory)(nil)
	_ backend.Pinger        = (*Memory)(nil)
)

type Config struct {
	MaxItems    int64 // 0 => 100_000
	NumCounters int64 // 0 => 10 * MaxItems
	BufferItems int64 // 0 => 64
	// Metrics enables ristretto counters; without them Stats reports unavailable.
	Metrics bool
}

func New(cfg Config) (*Memory, error) {
	if cfg.MaxItems < 0 || cfg.NumCounters < 0 || cfg.BufferItems < 0 {
		return nil, errors.New("memory: negative size in config")
	}
	maxItems := coalesce(cfg.MaxItems, 100_000)
	c, err := rc.NewCache(&rc.Config{
		NumCounters:        coalesce(cfg.NumCounters, 10*maxItems),
		MaxCost:            maxItems,
		BufferItems:        coalesce(cfg.BufferItems, 64),
		Metrics:            cfg.Metrics,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Memory{c: c, metrics: cfg.Metrics}, nil
}

func (m *Memory) Get(_ context.Context, key string) (any, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Put waits for ristretto's write buffers so the entry is visible to the next
// Get. ok=false means the admission policy dropped the write.
func (m *Memory) Put(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	ok := m.c.SetWithTTL(key, value, 1, ttl)
	m.c.Wait()
	return ok, nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.c.Del(key)
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.c.Clear()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Stats is derived from ristretto metrics. ItemCount is keys added minus keys
// evicted; explicit removals are not subtracted.
func (m *Memory) Stats(context.Context) (backend.Statistics, error) {
	if !m.metrics || m.c.Metrics == nil {
		return backend.Unavailable(), nil
	}
	mt := m.c.Metrics
	added := mt.KeysAdded()
	var items uint64
	if ev := mt.KeysEvicted(); added > ev {
		items = added - ev
	}
	return backend.Aggregate([]backend.NodeStatistics{{
		Server:    nodeName,
		HitCount:  mt.Hits(),
		GetCount:  mt.Hits() + mt.Misses(),
		PutCount:  added + mt.KeysUpdated(),
		ItemCount: items,
	}}), nil
}

func (m *Memory) Close(context.Context) error {
	m.once.Do(func() {
		m.c.Wait()
		m.c.Close()
	})
	return nil
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
