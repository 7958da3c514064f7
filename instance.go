package nscache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/health"
	"github.com/unkn0wn-root/nscache/keys"
	"github.com/unkn0wn-root/nscache/serial"
)

// Options configures a standalone instance (see NewInstance / New).
// Factories build the same thing from InstanceConfig.
type Options struct {
	// Name is the namespace; every key of the instance is prefixed with it.
	Name string

	// Backend is required.
	Backend backend.Backend

	// Kind is informational (logs, metrics labels). Defaults to "custom".
	Kind string

	// Monitor gates every operation. nil => health.Always.
	Monitor health.Monitor

	// Keys overrides the wire-key encoder options (e.g. keys.WithMaxLength).
	Keys []keys.Option

	// DefaultTTL applies when an operation is given ttl == 0.
	// 0 means no expiry (backend default).
	DefaultTTL time.Duration

	Logger Logger
	Hooks  Hooks
}

// Instance is one named cache: a backend, its health monitor and key encoder.
// It is untyped; Cache[V] views give it a value type. Instances are safe for
// concurrent use and shared by every view opened on them.
type Instance struct {
	name       string
	kind       string
	be         backend.Backend
	monitor    health.Monitor
	reporter   health.Reporter // nil unless monitor implements it
	keys       keys.Encoder
	defaultTTL time.Duration
	log        Logger
	hooks      Hooks

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewInstance validates opts and starts the health monitor.
func NewInstance(ctx context.Context, opts Options) (*Instance, error) {
	if opts.Backend == nil {
		return nil, &ConfigError{Instance: opts.Name, Reason: "backend is required"}
	}
	if opts.DefaultTTL < 0 {
		return nil, &ConfigError{Instance: opts.Name, Reason: "default ttl must not be negative"}
	}

	in := &Instance{
		name:       opts.Name,
		kind:       coalesce(opts.Kind, "custom"),
		be:         opts.Backend,
		monitor:    opts.Monitor,
		keys:       keys.New(opts.Name, opts.Keys...),
		defaultTTL: opts.DefaultTTL,
		log:        opts.Logger,
		hooks:      opts.Hooks,
	}
	if in.monitor == nil {
		in.monitor = health.Always{}
	}
	if in.log == nil {
		in.log = NopLogger{}
	}
	if in.hooks == nil {
		in.hooks = NopHooks{}
	}
	if r, ok := in.monitor.(health.Reporter); ok {
		in.reporter = r
	}

	if err := in.monitor.Start(ctx); err != nil {
		return nil, &ConfigError{Instance: opts.Name, Reason: "start health monitor", Err: err}
	}
	return in, nil
}

func (in *Instance) Name() string { return in.name }

// Kind is the backend kind the instance was built with.
func (in *Instance) Kind() string { return in.kind }

// Backend exposes the underlying store (e.g. to Sync a redis writer in tests).
func (in *Instance) Backend() backend.Backend { return in.be }

// Available reports the monitor's current view of the backend.
func (in *Instance) Available() bool { return in.monitor.Available() }

// WireKey returns the key the backend sees for a logical key.
func (in *Instance) WireKey(key string) string { return in.keys.Encode(key) }

// Close stops the monitor and releases the backend. Idempotent.
func (in *Instance) Close(ctx context.Context) error {
	in.closeOnce.Do(func() {
		in.closed.Store(true)
		in.closeErr = errors.Join(in.monitor.Close(), in.be.Close(ctx))
		in.log.Info("cache instance closed", Fields{"instance": in.name, "err": in.closeErr})
	})
	return in.closeErr
}

// gate reports whether op may reach the backend. Reads are skipped quietly,
// writes with a warning.
func (in *Instance) gate(op string, write bool) bool {
	if !in.closed.Load() && in.monitor.Available() {
		return true
	}
	f := Fields{"instance": in.name, "op": op}
	if write {
		in.log.Warn("cache unavailable, write skipped", f)
	} else {
		in.log.Debug("cache unavailable, read skipped", f)
	}
	in.hooks.Unavailable(in.name, op)
	return false
}

// report feeds transport outcomes to a passive monitor (circuit breaker).
// Serialization faults and unsupported operations say nothing about backend
// health and are not reported.
func (in *Instance) report(err error) {
	if in.reporter == nil {
		return
	}
	if err == nil {
		in.reporter.Report(nil)
		return
	}
	if terr := transportErr(err); terr != nil {
		in.reporter.Report(terr)
	}
}

// transportErr keeps the branches of err that reflect backend health. Joined
// errors are split first: a batch can carry serialization faults next to a
// transport failure.
func transportErr(err error) error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var keep []error
		for _, e := range j.Unwrap() {
			if t := transportErr(e); t != nil {
				keep = append(keep, t)
			}
		}
		return errors.Join(keep...)
	}
	if errors.Is(err, serial.ErrSerialization) || errors.Is(err, backend.ErrNotSupported) {
		return nil
	}
	return err
}

func (in *Instance) failed(op, key string, err error) {
	in.log.Warn("cache "+op+" failed", Fields{"instance": in.name, "key": key, "err": err})
	in.hooks.BackendError(in.name, op, err)
}

func (in *Instance) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return in.defaultTTL
	}
	return ttl
}

func (in *Instance) get(ctx context.Context, key string) (any, bool) {
	if !in.gate("get", false) {
		return nil, false
	}
	raw, ok, err := in.be.Get(ctx, in.keys.Encode(key))
	in.report(err)
	if err != nil {
		in.failed("get", key, err)
		return nil, false
	}
	return raw, ok
}

// fetch reads wire keys in one batch. out[i] is nil on miss. Only protocol
// faults are returned; anything else degrades to misses.
func (in *Instance) fetch(ctx context.Context, logical, wks []string) ([]any, error) {
	switch b := in.be.(type) {
	case backend.PositionalGetter:
		vals, err := b.GetPositional(ctx, wks)
		in.report(err)
		if err != nil {
			in.failed("get_many", "", err)
			return make([]any, len(wks)), nil
		}
		if len(vals) != len(wks) {
			return nil, &CardinalityError{Instance: in.name, Requested: len(wks), Returned: len(vals)}
		}
		return vals, nil

	case backend.KeyedGetter:
		got, err := b.GetKeyed(ctx, wks)
		in.report(err)
		if err != nil {
			in.failed("get_many", "", err)
			return make([]any, len(wks)), nil
		}
		idx := make(map[string]int, len(wks))
		for i, wk := range wks {
			idx[wk] = i
		}
		out := make([]any, len(wks))
		var unexpected []string
		for wk, v := range got {
			i, ok := idx[wk]
			if !ok {
				unexpected = append(unexpected, wk)
				continue
			}
			out[i] = v
		}
		if len(unexpected) > 0 {
			slices.Sort(unexpected)
			return nil, &CardinalityError{
				Instance:   in.name,
				Requested:  len(wks),
				Returned:   len(got),
				Unexpected: unexpected,
			}
		}
		return out, nil

	default:
		out := make([]any, len(wks))
		for i, wk := range wks {
			v, ok, err := in.be.Get(ctx, wk)
			in.report(err)
			if err != nil {
				in.failed("get_many", logical[i], err)
				continue
			}
			if ok {
				out[i] = v
			}
		}
		return out, nil
	}
}

func (in *Instance) put(ctx context.Context, op, key string, value any, ttl time.Duration) {
	wk := in.keys.Encode(key)
	ok, err := in.be.Put(ctx, wk, value, in.ttl(ttl))
	in.report(err)
	switch {
	case err != nil:
		in.failed(op, key, err)
	case !ok:
		in.log.Warn("cache write rejected", Fields{"instance": in.name, "key": key})
		in.hooks.WriteRejected(in.name, wk)
	}
}

func (in *Instance) putMany(ctx context.Context, items map[string]any, ttl time.Duration) {
	if !in.gate("put_many", true) {
		return
	}
	mp, ok := in.be.(backend.MultiPutter)
	if !ok {
		for k, v := range items {
			in.put(ctx, "put_many", k, v, ttl)
		}
		return
	}
	wire := make(map[string]any, len(items))
	for k, v := range items {
		wire[in.keys.Encode(k)] = v
	}
	err := mp.PutMany(ctx, wire, in.ttl(ttl))
	in.report(err)
	if err != nil {
		in.failed("put_many", fmt.Sprintf("<%d keys>", len(items)), err)
	}
}

func (in *Instance) remove(ctx context.Context, key string) {
	if !in.gate("remove", true) {
		return
	}
	err := in.be.Remove(ctx, in.keys.Encode(key))
	in.report(err)
	if err != nil {
		in.failed("remove", key, err)
	}
}

func (in *Instance) clear(ctx context.Context) {
	if !in.gate("clear", true) {
		return
	}
	err := in.be.Clear(ctx)
	if errors.Is(err, backend.ErrNotSupported) {
		in.log.Warn("cache clear not supported by backend", Fields{"instance": in.name, "backend": in.kind})
		in.hooks.Unsupported(in.name, "clear")
		return
	}
	in.report(err)
	if err != nil {
		in.failed("clear", "", err)
		return
	}
	in.log.Info("cache cleared", Fields{"instance": in.name})
}

// Statistics reports backend counters, or Unavailable when the backend is down,
// cannot report, or fails to.
func (in *Instance) Statistics(ctx context.Context) Statistics {
	if !in.gate("stats", false) {
		return backend.Unavailable()
	}
	sr, ok := in.be.(backend.StatsReporter)
	if !ok {
		return backend.Unavailable()
	}
	s, err := sr.Stats(ctx)
	in.report(err)
	if err != nil {
		in.failed("stats", "", err)
		return backend.Unavailable()
	}
	return s
}
