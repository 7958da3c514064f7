package asynchook

import (
	"errors"
	"sync"
	"testing"

	"github.com/unkn0wn-root/nscache"
)

type recorder struct {
	nscache.NopHooks
	mu     sync.Mutex
	hits   int
	errs   []string
	gate   chan struct{}
	gateOn bool
}

func (r *recorder) Hit(_ string, n int) {
	if r.gateOn {
		<-r.gate
	}
	r.mu.Lock()
	r.hits += n
	r.mu.Unlock()
}

func (r *recorder) BackendError(_, op string, _ error) {
	r.mu.Lock()
	r.errs = append(r.errs, op)
	r.mu.Unlock()
}

func TestDeliversBeforeClose(t *testing.T) {
	rec := &recorder{}
	h := New(rec, 2, 64)
	for i := 0; i < 10; i++ {
		h.Hit("users", 1)
	}
	h.BackendError("users", "get", errors.New("x"))
	h.Close()

	if rec.hits != 10 || len(rec.errs) != 1 || h.Dropped() != 0 {
		t.Fatalf("hits=%d errs=%v dropped=%d", rec.hits, rec.errs, h.Dropped())
	}
}

func TestDropsWhenFull(t *testing.T) {
	rec := &recorder{gate: make(chan struct{}), gateOn: true}
	h := New(rec, 1, 1)

	// one event held by the worker, one in the queue, the rest dropped
	for i := 0; i < 5; i++ {
		h.Hit("users", 1)
	}
	close(rec.gate)
	h.Close()

	if got := uint64(rec.hits) + h.Dropped(); got != 5 {
		t.Fatalf("delivered %d + dropped %d != 5", rec.hits, h.Dropped())
	}
	if h.Dropped() < 3 {
		t.Fatalf("dropped = %d, want at least 3", h.Dropped())
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	h := New(&recorder{}, 1, 4)
	h.Close()
	h.Close()
	h.Miss("users", 1)
	if h.Dropped() != 1 {
		t.Fatalf("dropped = %d", h.Dropped())
	}
}
