// Package nscache is a namespaced cache facade over pluggable backends
// (in-process ristretto or bigcache, remote redis or memcached).
//
// Each named instance owns a key namespace, a backend, a health monitor and a
// serializer pool. A Factory validates the whole configuration up front and
// builds instances lazily; Open hands out typed views:
//
//	f, err := nscache.NewFactory(cfg, nscache.WithLogger(logger))
//	users, err := nscache.Open[User](ctx, f, "users")
//	users.Put(ctx, "42", u, 10*time.Minute)
//	u, ok := users.Get(ctx, "42")
//
// Keys:
//
//	<len(instance)>:<instance>:<key>   - wire form of every key
//
// The cache never fails the caller for backend trouble. A backend that is
// down (per its monitor), erroring, or holding an undecodable value turns
// reads into misses and writes into logged no-ops. Only caller mistakes
// (negative TTL, unknown instance) and batch protocol desync are errors.
//
// Batch reads follow the backend's shape: positional (redis MGET), keyed
// (memcached GetMulti), or single-key fan-out for anything else.
package nscache
