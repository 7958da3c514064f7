package redis

import (
	"context"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// maxBatch bounds how many queued jobs share one pipeline.
const maxBatch = 256

type job struct {
	op   string
	keys []string // wire keys in the order add queues their commands
	seq  uint64
	add  func(ctx context.Context, p goredis.Pipeliner) []goredis.Cmder
}

// writer runs mutations on a single goroutine so they reach the server in
// submission order. Each turn it drains every ready job into one pipeline.
// Callers return as soon as the job is queued; a full queue blocks the caller
// until the worker catches up (or ctx ends).
//
// Reads of a key with a queued write wait for that write's batch, so a caller
// always observes its own puts and removes.
type writer struct {
	rdb   goredis.UniversalClient
	onErr func(op, key string, err error)

	smu    sync.Mutex // held across seq assignment and enqueue: queue order == seq order
	closed bool
	q      chan job
	done   chan struct{}

	mu      sync.Mutex
	seq     uint64            // last queued
	applied uint64            // last flushed
	pending map[string]uint64 // wire key => seq of its latest queued write
	flushed chan struct{}     // closed and replaced after every batch
}

func newWriter(rdb goredis.UniversalClient, qlen int, onErr func(op, key string, err error)) *writer {
	if qlen <= 0 {
		qlen = 1024
	}
	w := &writer{
		rdb:     rdb,
		onErr:   onErr,
		q:       make(chan job, qlen),
		done:    make(chan struct{}),
		pending: make(map[string]uint64),
		flushed: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *writer) loop() {
	defer close(w.done)
	batch := make([]job, 0, maxBatch)
	for j := range w.q {
		batch = append(batch[:0], j)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-w.q:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		w.flush(batch)
	}
}

// flush sends batch as one pipeline. Queued writes run detached from their
// callers' contexts.
func (w *writer) flush(batch []job) {
	ctx := context.Background()
	p := w.rdb.Pipeline()
	cmds := make([][]goredis.Cmder, len(batch))
	for i, j := range batch {
		cmds[i] = j.add(ctx, p)
	}
	_, _ = p.Exec(ctx) // per-command errors are read below

	if w.onErr != nil {
		for i, j := range batch {
			for n, c := range cmds[i] {
				if err := c.Err(); err != nil && err != goredis.Nil {
					var key string
					if n < len(j.keys) {
						key = j.keys[n]
					}
					w.onErr(j.op, key, err)
					break
				}
			}
		}
	}

	last := batch[len(batch)-1].seq
	w.mu.Lock()
	w.applied = last
	for _, j := range batch {
		for _, k := range j.keys {
			if w.pending[k] <= last {
				delete(w.pending, k)
			}
		}
	}
	close(w.flushed)
	w.flushed = make(chan struct{})
	w.mu.Unlock()
}

// submit queues add. The caller's cancellation does not reach the queued
// write; it only bounds the wait for queue space.
func (w *writer) submit(ctx context.Context, op string, keys []string, add func(context.Context, goredis.Pipeliner) []goredis.Cmder) error {
	w.smu.Lock()
	defer w.smu.Unlock()
	if w.closed {
		return goredis.ErrClosed
	}
	w.mu.Lock()
	seq := w.seq + 1
	w.mu.Unlock()

	select {
	case w.q <- job{op: op, keys: keys, seq: seq, add: add}:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.seq = seq
	if seq > w.applied {
		for _, k := range keys {
			w.pending[k] = seq
		}
	}
	w.mu.Unlock()
	return nil
}

// wait blocks until every write queued so far for keys reached the server.
func (w *writer) wait(ctx context.Context, keys ...string) error {
	return w.waitFor(ctx, func() uint64 {
		var need uint64
		for _, k := range keys {
			if s := w.pending[k]; s > need {
				need = s
			}
		}
		return need
	})
}

// sync waits until every job queued before the call has run.
func (w *writer) sync(ctx context.Context) error {
	return w.waitFor(ctx, func() uint64 { return w.seq })
}

// waitFor loops until applied catches up with target, evaluated under mu.
func (w *writer) waitFor(ctx context.Context, target func() uint64) error {
	for {
		w.mu.Lock()
		if target() <= w.applied {
			w.mu.Unlock()
			return nil
		}
		ch := w.flushed
		w.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// close drains queued jobs and stops the worker. Safe to call more than once.
func (w *writer) close() {
	w.smu.Lock()
	if !w.closed {
		w.closed = true
		close(w.q)
	}
	w.smu.Unlock()
	<-w.done
}
