package prom

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/nscache"
)

// StatsSource is satisfied by *nscache.Factory.
type StatsSource interface {
	Statistics(ctx context.Context) map[string]nscache.Statistics
}

// Collector scrapes backend statistics on every Prometheus collection.
// Unavailable statistics only emit the up gauge.
type Collector struct {
	src     StatsSource
	timeout time.Duration

	up    *prometheus.Desc
	hits  *prometheus.Desc
	gets  *prometheus.Desc
	puts  *prometheus.Desc
	items *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector bounds each scrape by timeout (0 => 5s).
func NewCollector(src StatsSource, namespace string, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	name := func(n string) string { return prometheus.BuildFQName(namespace, "cache_backend", n) }
	labels := []string{"cache", "server"}
	return &Collector{
		src:     src,
		timeout: timeout,
		up:      prometheus.NewDesc(name("up"), "Whether the backend reported statistics", []string{"cache"}, nil),
		hits:    prometheus.NewDesc(name("hits_total"), "Server-side hits", labels, nil),
		gets:    prometheus.NewDesc(name("gets_total"), "Server-side gets", labels, nil),
		puts:    prometheus.NewDesc(name("puts_total"), "Server-side writes", labels, nil),
		items:   prometheus.NewDesc(name("items"), "Items currently stored", labels, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.hits
	ch <- c.gets
	ch <- c.puts
	ch <- c.items
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for instance, s := range c.src.Statistics(ctx) {
		up := 0.0
		if s.Available {
			up = 1
		}
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, instance)
		if !s.Available {
			continue
		}
		for _, n := range s.Nodes {
			ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(n.HitCount), instance, n.Server)
			ch <- prometheus.MustNewConstMetric(c.gets, prometheus.CounterValue, float64(n.GetCount), instance, n.Server)
			ch <- prometheus.MustNewConstMetric(c.puts, prometheus.CounterValue, float64(n.PutCount), instance, n.Server)
			ch <- prometheus.MustNewConstMetric(c.items, prometheus.GaugeValue, float64(n.ItemCount), instance, n.Server)
		}
	}
}
