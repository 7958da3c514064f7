// Package redis is a remote backend over redis/go-redis/v9.
//
// Values are serialized through a serial.Pool. Batch reads use MGET and are
// positional. With FireAndForget (the default via nscache configuration),
// writes and deletes are queued to an ordered background writer that pipelines
// them, and the caller does not wait for the server's acknowledgement; failures
// surface through OnError only. Reads of a key with a queued write wait for it.
// Clear is deliberately not supported: flushing a shared remote store is not a
// cache-level decision.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/serial"
)

var ErrNilClient = errors.New("redis backend: no client or addresses")

type Redis struct {
	rdb         goredis.UniversalClient
	pool        *serial.Pool
	name        string
	closeClient bool
	w           *writer // nil => acknowledged writes
	once        sync.Once
}

var (
	_ backend.Backend          = (*Redis)(nil)
	_ backend.PositionalGetter = (*Redis)(nil)
	_ backend.MultiPutter      = (*Redis)(nil)
	_ backend.StatsReporter    = (*Redis)(nil)
	_ backend.Pinger           = (*Redis)(nil)
)

type Config struct {
	// Client is used as is when set; otherwise one is built from Addrs and owned
	// by the backend.
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns Client

	Addrs    []string
	DB       int
	Username string
	Password string
	PoolSize int

	FireAndForget bool
	QueueSize     int // fire-and-forget queue length; 0 => 1024
	// OnError receives failures of fire-and-forget writes.
	OnError func(op, key string, err error)
}

func New(cfg Config, pool *serial.Pool) (*Redis, error) {
	if pool == nil {
		return nil, errors.New("redis backend: serializer pool is required")
	}
	r := &Redis{rdb: cfg.Client, pool: pool, closeClient: cfg.CloseClient}
	if r.rdb == nil {
		if len(cfg.Addrs) == 0 {
			return nil, ErrNilClient
		}
		r.rdb = goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    cfg.Addrs,
			DB:       cfg.DB,
			Username: cfg.Username,
			Password: cfg.Password,
			PoolSize: cfg.PoolSize,
		})
		r.closeClient = true
	}
	r.name = "redis"
	if len(cfg.Addrs) > 0 {
		r.name = strings.Join(cfg.Addrs, ",")
	}
	if cfg.FireAndForget {
		r.w = newWriter(r.rdb, cfg.QueueSize, cfg.OnError)
	}
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (any, bool, error) {
	if r.w != nil {
		if err := r.w.wait(ctx, key); err != nil {
			return nil, false, err
		}
	}
	b, err := r.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return r.pool.Payload(b), true, nil
}

// GetPositional returns MGET's reply as is: out[i] belongs to keys[i] and the
// length is whatever the server sent, so the caller can detect desync.
func (r *Redis) GetPositional(ctx context.Context, keys []string) ([]any, error) {
	if r.w != nil {
		if err := r.w.wait(ctx, keys...); err != nil {
			return nil, err
		}
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		switch vv := v.(type) {
		case nil:
		case string:
			out[i] = r.pool.Payload([]byte(vv))
		case []byte:
			out[i] = r.pool.Payload(vv)
		default:
			return nil, fmt.Errorf("redis backend: unexpected MGET element %T", v)
		}
	}
	return out, nil
}

func (r *Redis) Put(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := r.pool.Marshal(value)
	if err != nil {
		return false, err
	}
	if r.w != nil {
		return true, r.w.submit(ctx, "put", []string{key}, func(ctx context.Context, p goredis.Pipeliner) []goredis.Cmder {
			return []goredis.Cmder{p.Set(ctx, key, raw, ttl)}
		})
	}
	if err := r.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

// PutMany pipelines one SET per entry. Entries that fail to serialize are
// skipped; their errors are joined with the write error, if any, as separate
// branches so callers can classify each.
func (r *Redis) PutMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	keys := make([]string, 0, len(items))
	raws := make([][]byte, 0, len(items))
	var errs []error
	for k, v := range items {
		raw, err := r.pool.Marshal(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
			continue
		}
		keys = append(keys, k)
		raws = append(raws, raw)
	}
	if len(keys) > 0 {
		add := func(ctx context.Context, p goredis.Pipeliner) []goredis.Cmder {
			cmds := make([]goredis.Cmder, len(keys))
			for i, k := range keys {
				cmds[i] = p.Set(ctx, k, raws[i], ttl)
			}
			return cmds
		}
		if r.w != nil {
			errs = append(errs, r.w.submit(ctx, "put_many", keys, add))
		} else {
			_, err := r.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
				add(ctx, p)
				return nil
			})
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if r.w != nil {
		return r.w.submit(ctx, "remove", []string{key}, func(ctx context.Context, p goredis.Pipeliner) []goredis.Cmder {
			return []goredis.Cmder{p.Del(ctx, key)}
		})
	}
	return r.rdb.Del(ctx, key).Err()
}

func (r *Redis) Clear(context.Context) error { return backend.ErrNotSupported }

func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }

// Sync blocks until fire-and-forget writes queued so far reached the server.
func (r *Redis) Sync(ctx context.Context) error {
	if r.w == nil {
		return nil
	}
	return r.w.sync(ctx)
}

// Close drains queued writes and releases the client when this backend owns
// it. Safe to call multiple times; repeated calls become no-ops.
func (r *Redis) Close(context.Context) error {
	var err error
	r.once.Do(func() {
		if r.w != nil {
			r.w.close()
		}
		if r.closeClient {
			if cerr := r.rdb.Close(); cerr != nil && !errors.Is(cerr, goredis.ErrClosed) {
				err = cerr
			}
		}
	})
	return err
}
