// Package memcached is a remote backend over bradfitz/gomemcache.
//
// Single-key operations are direct RPCs; batch reads use one GetMulti and are
// keyed (the server omits misses). Statistics come from the text protocol
// "stats" command sent to every configured server.
package memcached

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/serial"
)

// maxRelativeExpiration is the largest relative expiration memcached accepts;
// longer TTLs must be sent as absolute unix timestamps.
const maxRelativeExpiration = 30 * 24 * time.Hour

var ErrNoServers = errors.New("memcached: no servers configured")

// Client is the subset of *memcache.Client the backend uses.
type Client interface {
	Get(key string) (*memcache.Item, error)
	GetMulti(keys []string) (map[string]*memcache.Item, error)
	Set(item *memcache.Item) error
	Delete(key string) error
	FlushAll() error
	Ping() error
}

type Memcached struct {
	client  Client
	pool    *serial.Pool
	servers []string
	stats   StatsFunc
	once    sync.Once
}

var (
	_ backend.Backend       = (*Memcached)(nil)
	_ backend.KeyedGetter   = (*Memcached)(nil)
	_ backend.StatsReporter = (*Memcached)(nil)
	_ backend.Pinger        = (*Memcached)(nil)
)

type Config struct {
	Servers      []string
	Timeout      time.Duration // 0 => gomemcache default (500ms)
	MaxIdleConns int           // 0 => gomemcache default (2)

	// Client overrides the gomemcache client built from Servers (tests).
	Client Client
	// Stats overrides the per-server stats query (tests).
	Stats StatsFunc
}

func New(cfg Config, pool *serial.Pool) (*Memcached, error) {
	if pool == nil {
		return nil, errors.New("memcached: serializer pool is required")
	}
	if len(cfg.Servers) == 0 && cfg.Client == nil {
		return nil, ErrNoServers
	}
	client := cfg.Client
	if client == nil {
		mc := memcache.New(cfg.Servers...)
		if cfg.Timeout > 0 {
			mc.Timeout = cfg.Timeout
		}
		if cfg.MaxIdleConns > 0 {
			mc.MaxIdleConns = cfg.MaxIdleConns
		}
		client = mc
	}
	stats := cfg.Stats
	if stats == nil {
		stats = dialStats(cfg.Timeout)
	}
	return &Memcached{
		client:  client,
		pool:    pool,
		servers: append([]string(nil), cfg.Servers...),
		stats:   stats,
	}, nil
}

func (m *Memcached) Get(_ context.Context, key string) (any, bool, error) {
	it, err := m.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return m.pool.Payload(it.Value), true, nil
}

// GetKeyed issues a single GetMulti. Keys with no value are absent from the
// result; the returned map is keyed by whatever the server echoed back.
func (m *Memcached) GetKeyed(_ context.Context, keys []string) (map[string]any, error) {
	items, err := m.client.GetMulti(keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(items))
	for k, it := range items {
		out[k] = m.pool.Payload(it.Value)
	}
	return out, nil
}

func (m *Memcached) Put(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := m.pool.Marshal(value)
	if err != nil {
		return false, err
	}
	err = m.client.Set(&memcache.Item{Key: key, Value: raw, Expiration: expiration(ttl, time.Now())})
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memcached) Remove(_ context.Context, key string) error {
	if err := m.client.Delete(key); err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

func (m *Memcached) Clear(context.Context) error { return m.client.FlushAll() }

func (m *Memcached) Ping(context.Context) error { return m.client.Ping() }

func (m *Memcached) Stats(ctx context.Context) (backend.Statistics, error) {
	if len(m.servers) == 0 {
		return backend.Unavailable(), nil
	}
	nodes, err := collectStats(ctx, m.servers, m.stats)
	if err != nil {
		return backend.Unavailable(), err
	}
	return backend.Aggregate(nodes), nil
}

// Close releases idle connections when the client supports it.
func (m *Memcached) Close(context.Context) error {
	var err error
	m.once.Do(func() {
		if c, ok := m.client.(interface{ Close() error }); ok {
			err = c.Close()
		}
	})
	return err
}

func expiration(ttl time.Duration, now time.Time) int32 {
	if ttl <= 0 {
		return 0
	}
	if ttl > maxRelativeExpiration {
		return int32(now.Add(ttl).Unix())
	}
	secs := (ttl + time.Second - 1) / time.Second // round sub-second TTLs up
	return int32(secs)
}

func (m *Memcached) String() string { return fmt.Sprintf("memcached%v", m.servers) }
