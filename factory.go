package nscache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/health"
	"github.com/unkn0wn-root/nscache/serial"
)

// Deps are the per-instance collaborators handed to a Builder.
type Deps struct {
	// Pool serializes values for byte backends. In-process reference backends
	// ignore it.
	Pool   *serial.Pool
	Logger Logger
}

// Builder constructs the backend for one instance config.
type Builder func(ctx context.Context, cfg InstanceConfig, deps Deps) (backend.Backend, error)

// MonitorFunc constructs the health monitor for one instance.
type MonitorFunc func(cfg InstanceConfig, be backend.Backend, log Logger) (health.Monitor, error)

type Option func(*Factory)

func WithLogger(l Logger) Option { return func(f *Factory) { f.log = l } }

func WithHooks(h Hooks) Option { return func(f *Factory) { f.hooks = h } }

// WithBuilder registers (or replaces) the builder for a backend kind.
func WithBuilder(kind string, b Builder) Option {
	return func(f *Factory) { f.builders[kind] = b }
}

// WithMonitor replaces the health monitor selection driven by HealthConfig.
func WithMonitor(fn MonitorFunc) Option { return func(f *Factory) { f.monitor = fn } }

// Factory owns every named instance of an application. Configuration is
// validated up front; instances are built on first use and shared afterwards.
type Factory struct {
	disabled bool
	configs  map[string]InstanceConfig
	order    []string
	builders map[string]Builder
	monitor  MonitorFunc
	log      Logger
	hooks    Hooks

	mu        sync.Mutex
	instances map[string]*Instance
	closed    bool
	building  singleflight.Group // one build per name; mu is not held while dialing
}

// NewFactory validates cfg. Nothing is dialed until an instance is resolved.
func NewFactory(cfg Config, opts ...Option) (*Factory, error) {
	f := &Factory{
		disabled:  cfg.Disabled,
		configs:   make(map[string]InstanceConfig, len(cfg.Instances)),
		builders:  defaultBuilders(),
		monitor:   defaultMonitor,
		instances: make(map[string]*Instance),
	}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = NopLogger{}
	}
	if f.hooks == nil {
		f.hooks = NopHooks{}
	}

	known := func(kind string) bool { _, ok := f.builders[kind]; return ok }
	for _, ic := range cfg.Instances {
		if _, dup := f.configs[ic.Name]; dup {
			return nil, &ConfigError{Instance: ic.Name, Reason: "duplicate instance name"}
		}
		if err := ic.validate(known); err != nil {
			return nil, err
		}
		f.configs[ic.Name] = ic
		f.order = append(f.order, ic.Name)
	}

	if !f.disabled {
		if len(f.configs) == 0 {
			return nil, &ConfigError{Reason: "no cache instances configured"}
		}
		if _, ok := f.configs[""]; !ok && len(f.configs) > 1 {
			return nil, &ConfigError{Reason: "multiple instances configured but no default (unnamed) instance"}
		}
	}
	f.log.Info("cache factory configured", Fields{"instances": len(f.configs), "disabled": f.disabled})
	return f, nil
}

// Enabled is false for factories built from a disabled config.
func (f *Factory) Enabled() bool { return !f.disabled }

// Names lists configured instance names in config order.
func (f *Factory) Names() []string { return slices.Clone(f.order) }

func (f *Factory) lookup(name string) (InstanceConfig, error) {
	if ic, ok := f.configs[name]; ok {
		return ic, nil
	}
	if name == "" && len(f.order) == 1 {
		return f.configs[f.order[0]], nil
	}
	return InstanceConfig{}, &ConfigError{Instance: name, Reason: "no such cache instance"}
}

// Instance resolves name ("" for the default) to its shared instance, building
// it on first use. Disabled factories have no instances.
func (f *Factory) Instance(ctx context.Context, name string) (*Instance, error) {
	if f.disabled {
		return nil, &ConfigError{Instance: name, Reason: "caching is disabled"}
	}
	ic, err := f.lookup(name)
	if err != nil {
		return nil, err
	}

	if in, err := f.built(ic.Name); in != nil || err != nil {
		return in, err
	}
	v, err, _ := f.building.Do(ic.Name, func() (any, error) {
		// a build that finished between built() and Do is picked up here
		if in, err := f.built(ic.Name); in != nil || err != nil {
			return in, err
		}
		in, err := f.build(ctx, ic)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.closed {
			_ = in.Close(ctx)
			return nil, ErrFactoryClosed
		}
		f.instances[ic.Name] = in
		return in, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Instance), nil
}

// built returns the instance already built for name, or ErrFactoryClosed.
func (f *Factory) built(name string) (*Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFactoryClosed
	}
	return f.instances[name], nil
}

func (f *Factory) build(ctx context.Context, ic InstanceConfig) (*Instance, error) {
	format, _ := ic.serialFormat() // validated in NewFactory
	pool, err := serial.NewPool(format, ic.PoolSize)
	if err != nil {
		return nil, &ConfigError{Instance: ic.Name, Reason: "serializer pool", Err: err}
	}
	pool.Limit(ic.MaxValueBytes)
	be, err := f.builders[ic.Backend](ctx, ic, Deps{Pool: pool, Logger: f.log})
	if err != nil {
		return nil, &ConfigError{Instance: ic.Name, Reason: "build " + ic.Backend + " backend", Err: err}
	}
	mon, err := f.monitor(ic, be, f.log)
	if err != nil {
		_ = be.Close(ctx)
		return nil, &ConfigError{Instance: ic.Name, Reason: "health monitor", Err: err}
	}
	in, err := NewInstance(ctx, Options{
		Name:       ic.Name,
		Kind:       ic.Backend,
		Backend:    be,
		Monitor:    mon,
		Keys:       ic.keyOptions(),
		DefaultTTL: ic.DefaultTTL,
		Logger:     f.log,
		Hooks:      f.hooks,
	})
	if err != nil {
		_ = be.Close(ctx)
		return nil, err
	}
	f.log.Info("cache instance ready", Fields{
		"instance":   ic.Name,
		"backend":    ic.Backend,
		"serializer": format.String(),
		"health":     coalesce(ic.Health.Mode, HealthAlways),
	})
	return in, nil
}

// Open returns a typed view over the named instance. On a disabled factory
// it returns a cache that never hits and never writes.
func Open[V any](ctx context.Context, f *Factory, name string) (Cache[V], error) {
	if f.disabled {
		return nopCache[V]{name: name}, nil
	}
	in, err := f.Instance(ctx, name)
	if err != nil {
		return nil, err
	}
	return Of[V](in), nil
}

// Statistics reports every instance built so far, keyed by name.
func (f *Factory) Statistics(ctx context.Context) map[string]Statistics {
	f.mu.Lock()
	built := make([]*Instance, 0, len(f.instances))
	for _, in := range f.instances {
		built = append(built, in)
	}
	f.mu.Unlock()

	out := make(map[string]Statistics, len(built))
	for _, in := range built {
		out[in.name] = in.Statistics(ctx)
	}
	return out
}

// Close closes every built instance. Further resolutions fail.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	built := f.instances
	f.instances = nil
	f.mu.Unlock()

	var errs []error
	for name, in := range built {
		if err := in.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("instance %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
