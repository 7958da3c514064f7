package redis

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/nscache/backend"
)

// Stats combines INFO stats (keyspace hits/misses), INFO commandstats (SET
// calls) and DBSIZE, one entry per server.
func (r *Redis) Stats(ctx context.Context) (backend.Statistics, error) {
	servers, err := r.servers(ctx)
	if err != nil {
		return backend.Unavailable(), err
	}
	nodes := make([]backend.NodeStatistics, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range servers {
		g.Go(func() error {
			n, err := serverStats(gctx, s)
			if err != nil {
				return fmt.Errorf("redis stats %s: %w", s.addr, err)
			}
			nodes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return backend.Unavailable(), err
	}
	return backend.Aggregate(nodes), nil
}

type server struct {
	addr string
	c    goredis.Cmdable
}

// servers lists the nodes that hold data. A cluster reports each master;
// replicas would count the same keys twice. Failover and ring clients do not
// expose their nodes and report as one entry under the configured addresses.
func (r *Redis) servers(ctx context.Context) ([]server, error) {
	switch c := r.rdb.(type) {
	case *goredis.ClusterClient:
		var mu sync.Mutex
		var out []server
		err := c.ForEachMaster(ctx, func(_ context.Context, shard *goredis.Client) error {
			mu.Lock()
			out = append(out, server{addr: shard.Options().Addr, c: shard})
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, err
		}
		slices.SortFunc(out, func(a, b server) int { return strings.Compare(a.addr, b.addr) })
		return out, nil
	case *goredis.Client:
		return []server{{addr: c.Options().Addr, c: c}}, nil
	default:
		return []server{{addr: r.name, c: r.rdb}}, nil
	}
}

func serverStats(ctx context.Context, s server) (backend.NodeStatistics, error) {
	info, err := s.c.Info(ctx, "stats").Result()
	if err != nil {
		return backend.NodeStatistics{}, err
	}
	cmds, err := s.c.Info(ctx, "commandstats").Result()
	if err != nil {
		return backend.NodeStatistics{}, err
	}
	size, err := s.c.DBSize(ctx).Result()
	if err != nil {
		return backend.NodeStatistics{}, err
	}
	return nodeStats(s.addr, info, cmds, size), nil
}

func nodeStats(server, info, cmds string, size int64) backend.NodeStatistics {
	st := parseInfo(info)
	hits := parseUint(st["keyspace_hits"])
	misses := parseUint(st["keyspace_misses"])

	var puts uint64
	cs := parseInfo(cmds)
	for _, name := range []string{"cmdstat_set", "cmdstat_setex", "cmdstat_psetex", "cmdstat_mset"} {
		puts += parseUint(commandCalls(cs[name]))
	}

	n := backend.NodeStatistics{
		Server:   server,
		HitCount: hits,
		GetCount: hits + misses,
		PutCount: puts,
	}
	if size > 0 {
		n.ItemCount = uint64(size)
	}
	return n
}

// parseInfo reads "key:value" lines, skipping "# Section" headers.
func parseInfo(s string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// commandCalls extracts N from "calls=N,usec=...,usec_per_call=...".
func commandCalls(v string) string {
	for _, part := range strings.Split(v, ",") {
		if k, n, ok := strings.Cut(part, "="); ok && k == "calls" {
			return n
		}
	}
	return ""
}

func parseUint(s string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
