package nscache

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/unkn0wn-root/nscache/serial"
)

type cache[V any] struct {
	in    *Instance
	owned bool
}

var _ Cache[any] = (*cache[any])(nil)

func (c *cache[V]) Name() string { return c.in.name }

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	in := c.in
	raw, ok := in.get(ctx, key)
	if !ok {
		in.log.Debug("cache miss", Fields{"instance": in.name, "key": key})
		in.hooks.Miss(in.name, 1)
		return zero, false
	}
	v, err := decode[V](raw)
	if err != nil {
		c.decodeFailed(key, err)
		in.hooks.Miss(in.name, 1)
		return zero, false
	}
	in.log.Debug("cache hit", Fields{"instance": in.name, "key": key})
	in.hooks.Hit(in.name, 1)
	return v, true
}

func (c *cache[V]) GetMany(ctx context.Context, keys []string) (map[string]Lookup[V], error) {
	in := c.in
	out := make(map[string]Lookup[V], len(keys))
	uniq := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := out[k]; dup {
			continue
		}
		out[k] = Lookup[V]{}
		uniq = append(uniq, k)
	}
	if len(uniq) == 0 {
		return out, nil
	}
	if !in.gate("get_many", false) {
		in.hooks.Miss(in.name, len(uniq))
		return out, nil
	}

	raws, err := in.fetch(ctx, uniq, in.keys.EncodeAll(uniq))
	if err != nil {
		in.log.Error("cache batch read out of sync", Fields{"instance": in.name, "keys": len(uniq), "err": err})
		in.hooks.BackendError(in.name, "get_many", err)
		return nil, err
	}

	hits := 0
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		v, err := decode[V](raw)
		if err != nil {
			c.decodeFailed(uniq[i], err)
			continue
		}
		out[uniq[i]] = Lookup[V]{Value: v, Found: true}
		hits++
	}
	if hits > 0 {
		in.hooks.Hit(in.name, hits)
	}
	if miss := len(uniq) - hits; miss > 0 {
		in.hooks.Miss(in.name, miss)
	}
	in.log.Debug("cache batch read", Fields{"instance": in.name, "keys": len(uniq), "hits": hits})
	return out, nil
}

func (c *cache[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl < 0 {
		return ErrNegativeTTL
	}
	if !c.in.gate("put", true) {
		return nil
	}
	c.in.put(ctx, "put", key, value, ttl)
	return nil
}

func (c *cache[V]) PutMany(ctx context.Context, entries map[string]V, ttl time.Duration) error {
	if ttl < 0 {
		return ErrNegativeTTL
	}
	if len(entries) == 0 {
		return nil
	}
	items := make(map[string]any, len(entries))
	for k, v := range entries {
		items[k] = v
	}
	c.in.putMany(ctx, items, ttl)
	return nil
}

func (c *cache[V]) Remove(ctx context.Context, key string) { c.in.remove(ctx, key) }

func (c *cache[V]) Clear(ctx context.Context) { c.in.clear(ctx) }

func (c *cache[V]) Statistics(ctx context.Context) Statistics { return c.in.Statistics(ctx) }

func (c *cache[V]) Close(ctx context.Context) error {
	if !c.owned {
		return nil
	}
	return c.in.Close(ctx)
}

func (c *cache[V]) decodeFailed(key string, err error) {
	in := c.in
	wk := in.keys.Encode(key)
	in.log.Warn("cache value undecodable, treating as miss", Fields{"instance": in.name, "key": key, "err": err})
	in.hooks.DecodeError(in.name, wk, err)
}

// decode turns a backend value into V: serialized payloads are unmarshaled,
// in-process values must already be a V.
func decode[V any](raw any) (V, error) {
	var v V
	if p, ok := raw.(*serial.Payload); ok {
		if err := p.Decode(&v); err != nil {
			return v, err
		}
		return v, nil
	}
	if tv, ok := raw.(V); ok {
		return tv, nil
	}
	return v, fmt.Errorf("%w: have %T, want %v", ErrTypeMismatch, raw, reflect.TypeFor[V]())
}
