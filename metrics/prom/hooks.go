// Package prom exports cache events and backend statistics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	hooks := prom.NewHooks(reg, "app")
//	f, _ := nscache.NewFactory(cfg, nscache.WithHooks(hooks))
//	reg.MustRegister(prom.NewCollector(f, "app", 2*time.Second))
package prom

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/unkn0wn-root/nscache"
)

// Hooks counts cache events per instance. Counters are registered on
// construction. The instance name goes in the "cache" label; "instance" is
// the scrape target's own label.
type Hooks struct {
	hits          *prometheus.CounterVec
	misses        *prometheus.CounterVec
	unavailable   *prometheus.CounterVec
	backendErrors *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	writeRejected *prometheus.CounterVec
	unsupported   *prometheus.CounterVec
}

var _ nscache.Hooks = (*Hooks)(nil)

func NewHooks(reg prometheus.Registerer, namespace string) *Hooks {
	f := promauto.With(reg)
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, labels)
	}
	return &Hooks{
		hits:          counter("hits_total", "Keys served from the backend", "cache"),
		misses:        counter("misses_total", "Keys not served (absent, undecodable or backend trouble)", "cache"),
		unavailable:   counter("unavailable_total", "Operations skipped while the backend was marked down", "cache", "op"),
		backendErrors: counter("backend_errors_total", "Backend failures absorbed by the cache", "cache", "op"),
		decodeErrors:  counter("decode_errors_total", "Stored values that could not be decoded", "cache"),
		writeRejected: counter("write_rejected_total", "Writes refused by the backend", "cache"),
		unsupported:   counter("unsupported_total", "Operations the backend declined", "cache", "op"),
	}
}

func (h *Hooks) Hit(instance string, n int) { h.hits.WithLabelValues(instance).Add(float64(n)) }
func (h *Hooks) Miss(instance string, n int) {
	h.misses.WithLabelValues(instance).Add(float64(n))
}
func (h *Hooks) Unavailable(instance, op string) { h.unavailable.WithLabelValues(instance, op).Inc() }
func (h *Hooks) BackendError(instance, op string, _ error) {
	h.backendErrors.WithLabelValues(instance, op).Inc()
}
func (h *Hooks) DecodeError(instance, _ string, _ error) {
	h.decodeErrors.WithLabelValues(instance).Inc()
}
func (h *Hooks) WriteRejected(instance, _ string) { h.writeRejected.WithLabelValues(instance).Inc() }
func (h *Hooks) Unsupported(instance, op string)  { h.unsupported.WithLabelValues(instance, op).Inc() }
