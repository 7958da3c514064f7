package nscache

import (
	"context"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/backend/bigcache"
	"github.com/unkn0wn-root/nscache/backend/memcached"
	"github.com/unkn0wn-root/nscache/backend/memory"
	"github.com/unkn0wn-root/nscache/backend/redis"
	"github.com/unkn0wn-root/nscache/health"
)

func defaultBuilders() map[string]Builder {
	return map[string]Builder{
		KindMemory:    buildMemory,
		KindBigCache:  buildBigCache,
		KindMemcached: buildMemcached,
		KindRedis:     buildRedis,
	}
}

func buildMemory(_ context.Context, ic InstanceConfig, _ Deps) (backend.Backend, error) {
	m, err := memory.New(memory.Config{
		MaxItems:    ic.Memory.MaxItems,
		NumCounters: ic.Memory.NumCounters,
		BufferItems: ic.Memory.BufferItems,
		Metrics:     ic.Memory.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func buildBigCache(_ context.Context, ic InstanceConfig, d Deps) (backend.Backend, error) {
	b, err := bigcache.New(bigcache.Config{
		LifeWindow:         ic.BigCache.LifeWindow,
		CleanWindow:        ic.BigCache.CleanWindow,
		Shards:             ic.BigCache.Shards,
		MaxEntrySize:       ic.BigCache.MaxEntrySize,
		HardMaxCacheSizeMB: ic.BigCache.HardMaxMB,
	}, d.Pool)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func buildMemcached(_ context.Context, ic InstanceConfig, d Deps) (backend.Backend, error) {
	m, err := memcached.New(memcached.Config{
		Servers:      ic.Servers,
		Timeout:      ic.Memcached.Timeout,
		MaxIdleConns: ic.Memcached.MaxIdleConns,
	}, d.Pool)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func buildRedis(_ context.Context, ic InstanceConfig, d Deps) (backend.Backend, error) {
	log := d.Logger
	r, err := redis.New(redis.Config{
		Addrs:         ic.Servers,
		DB:            ic.Redis.DB,
		Username:      ic.Redis.Username,
		Password:      ic.Redis.Password,
		PoolSize:      ic.Redis.PoolSize,
		FireAndForget: !ic.Redis.AckWrites,
		QueueSize:     ic.Redis.QueueSize,
		OnError: func(op, key string, err error) {
			log.Warn("cache async write failed", Fields{"instance": ic.Name, "op": op, "key": key, "err": err})
		},
	}, d.Pool)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func defaultMonitor(ic InstanceConfig, be backend.Backend, log Logger) (health.Monitor, error) {
	hc := ic.Health
	switch hc.Mode {
	case "", HealthAlways:
		return health.Always{}, nil

	case HealthPoll:
		p, ok := be.(backend.Pinger)
		if !ok {
			return nil, fmt.Errorf("backend %q cannot be pinged", ic.Backend)
		}
		return health.NewPoller(p.Ping, health.PollerOptions{
			Interval: hc.Interval,
			Timeout:  hc.Timeout,
			Failures: hc.Failures,
			OnChange: func(available bool, err error) {
				f := Fields{"instance": ic.Name, "backend": ic.Backend, "err": err}
				if available {
					log.Info("cache backend available", f)
				} else {
					log.Warn("cache backend unavailable", f)
				}
			},
		}), nil

	case HealthBreaker:
		return health.NewBreaker(ic.Name, health.BreakerOptions{
			Failures: uint32(hc.Failures),
			Timeout:  hc.Interval,
			OnChange: func(_ string, from, to gobreaker.State) {
				log.Warn("cache circuit breaker state change", Fields{
					"instance": ic.Name,
					"from":     from.String(),
					"to":       to.String(),
				})
			},
		}), nil
	}
	return nil, fmt.Errorf("unknown health mode %q", hc.Mode)
}
