package memcached

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/nscache/backend"
)

// StatsFunc queries one server's counters.
type StatsFunc func(ctx context.Context, server string) (backend.NodeStatistics, error)

const defaultStatsTimeout = time.Second

// collectStats queries all servers concurrently; any failing node fails the
// whole report.
func collectStats(ctx context.Context, servers []string, fn StatsFunc) ([]backend.NodeStatistics, error) {
	nodes := make([]backend.NodeStatistics, len(servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range servers {
		g.Go(func() error {
			n, err := fn(gctx, s)
			if err != nil {
				return fmt.Errorf("memcached stats %s: %w", s, err)
			}
			nodes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// dialStats speaks the text protocol directly; gomemcache has no stats call.
func dialStats(timeout time.Duration) StatsFunc {
	if timeout <= 0 {
		timeout = defaultStatsTimeout
	}
	return func(ctx context.Context, server string) (backend.NodeStatistics, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", server)
		if err != nil {
			return backend.NodeStatistics{}, err
		}
		defer conn.Close()

		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		_ = conn.SetDeadline(deadline)

		if _, err := io.WriteString(conn, "stats\r\n"); err != nil {
			return backend.NodeStatistics{}, err
		}
		return ParseStats(server, conn)
	}
}

// ParseStats reads a "stats" response ("STAT <name> <value>" lines terminated
// by "END") and extracts the counters nscache reports.
func ParseStats(server string, r io.Reader) (backend.NodeStatistics, error) {
	n := backend.NodeStatistics{Server: server}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "END" {
			return n, nil
		}
		if line == "ERROR" || strings.HasPrefix(line, "SERVER_ERROR") || strings.HasPrefix(line, "CLIENT_ERROR") {
			return n, fmt.Errorf("stats: %s", line)
		}
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "STAT" {
			continue
		}
		var dst *uint64
		switch fields[1] {
		case "get_hits":
			dst = &n.HitCount
		case "cmd_get":
			dst = &n.GetCount
		case "cmd_set":
			dst = &n.PutCount
		case "curr_items":
			dst = &n.ItemCount
		default:
			continue
		}
		v, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return n, fmt.Errorf("stats: %s: %w", fields[1], err)
		}
		*dst = v
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	return n, io.ErrUnexpectedEOF
}
