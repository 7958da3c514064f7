package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// PingFunc probes the backend.
type PingFunc func(ctx context.Context) error

type PollerOptions struct {
	Interval time.Duration // 0 => 5s
	Timeout  time.Duration // per-ping timeout; 0 => 1s
	// Failures is the number of consecutive failed pings before the backend is
	// reported down; 0 => 1. A single successful ping brings it back.
	Failures int
	// OnChange is called when availability flips.
	OnChange func(available bool, err error)
}

// Poller pings the backend on an interval. The backend is assumed available
// until the first ping, which Start runs synchronously.
type Poller struct {
	ping PingFunc
	opts PollerOptions

	available atomic.Bool
	failures  int // owned by the polling goroutine after Start

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

var _ Monitor = (*Poller)(nil)

func NewPoller(ping PingFunc, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.Failures <= 0 {
		opts.Failures = 1
	}
	p := &Poller{ping: ping, opts: opts, stopCh: make(chan struct{})}
	p.available.Store(true)
	return p
}

func (p *Poller) Available() bool { return p.available.Load() }

func (p *Poller) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		p.check(ctx)
		ticker := time.NewTicker(p.opts.Interval)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					p.check(context.Background())
				case <-p.stopCh:
					return
				}
			}
		}()
	})
	return nil
}

func (p *Poller) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	err := p.ping(ctx)

	was := p.available.Load()
	now := was
	if err == nil {
		p.failures = 0
		now = true
	} else {
		p.failures++
		if p.failures >= p.opts.Failures {
			now = false
		}
	}
	if now != was {
		p.available.Store(now)
		if p.opts.OnChange != nil {
			p.opts.OnChange(now, err)
		}
	}
}

func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopCh)
		p.wg.Wait()
	})
	return nil
}
