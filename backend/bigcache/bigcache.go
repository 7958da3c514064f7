// Package bigcache is an in-process, GC-friendly byte backend over
// allegro/bigcache. Values are serialized through a serial.Pool.
package bigcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/serial"
)

const nodeName = "local"

type BigCache struct {
	c    *bc.BigCache
	pool *serial.Pool
	puts atomic.Uint64
	once sync.Once
}

var (
	_ backend.Backend       = (*BigCache)(nil)
	_ backend.StatsReporter = (*BigCache)(nil)
	_ backend.Pinger        = (*BigCache)(nil)
)

type Config struct {
	LifeWindow         time.Duration // 0 => 10m; bigcache has no per-entry TTL
	CleanWindow        time.Duration
	Shards             int // power of two; 0 => bigcache default
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config, pool *serial.Pool) (*BigCache, error) {
	if pool == nil {
		return nil, errors.New("bigcache: serializer pool is required")
	}
	life := cfg.LifeWindow
	if life <= 0 {
		life = 10 * time.Minute
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.Shards > 0 {
		conf.Shards = cfg.Shards
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &BigCache{c: c, pool: pool}, nil
}

func (b *BigCache) Get(_ context.Context, key string) (any, bool, error) {
	raw, err := b.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b.pool.Payload(raw), true, nil
}

// Put ignores ttl; entries live for the configured LifeWindow.
func (b *BigCache) Put(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	raw, err := b.pool.Marshal(value)
	if err != nil {
		return false, err
	}
	if err := b.c.Set(key, raw); err != nil {
		return false, err
	}
	b.puts.Add(1)
	return true, nil
}

func (b *BigCache) Remove(_ context.Context, key string) error {
	if err := b.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (b *BigCache) Clear(context.Context) error { return b.c.Reset() }

func (b *BigCache) Ping(context.Context) error { return nil }

func (b *BigCache) Stats(context.Context) (backend.Statistics, error) {
	st := b.c.Stats()
	return backend.Aggregate([]backend.NodeStatistics{{
		Server:    nodeName,
		HitCount:  uint64(st.Hits),
		GetCount:  uint64(st.Hits + st.Misses),
		PutCount:  b.puts.Load(),
		ItemCount: uint64(b.c.Len()),
	}}), nil
}

func (b *BigCache) Close(context.Context) error {
	var err error
	b.once.Do(func() { err = b.c.Close() })
	return err
}
