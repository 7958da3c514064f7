// Package asynchook moves hook delivery off the cache's hot path.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{DecodeErrorEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	f, _ := nscache.NewFactory(cfg, nscache.WithHooks(hooks))
//
// Events are dropped, never queued unboundedly, when the workers fall behind.
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/nscache"
)

type Hooks struct {
	inner   nscache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ nscache.Hooks = (*Hooks)(nil)

func New(inner nscache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Dropped counts events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

// Close delivers queued events and stops the workers. Events emitted after
// Close are dropped.
func (h *Hooks) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.q)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(in string, n int)  { h.try(func() { h.inner.Hit(in, n) }) }
func (h *Hooks) Miss(in string, n int) { h.try(func() { h.inner.Miss(in, n) }) }
func (h *Hooks) Unavailable(in, op string) {
	h.try(func() { h.inner.Unavailable(in, op) })
}
func (h *Hooks) BackendError(in, op string, err error) {
	h.try(func() { h.inner.BackendError(in, op, err) })
}
func (h *Hooks) DecodeError(in, wk string, err error) {
	h.try(func() { h.inner.DecodeError(in, wk, err) })
}
func (h *Hooks) WriteRejected(in, wk string) { h.try(func() { h.inner.WriteRejected(in, wk) }) }
func (h *Hooks) Unsupported(in, op string)   { h.try(func() { h.inner.Unsupported(in, op) }) }
