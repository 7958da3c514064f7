package nscache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/unkn0wn-root/nscache/backend"
	"github.com/unkn0wn-root/nscache/backend/redis"
	"github.com/unkn0wn-root/nscache/health"
)

// countingBuilder returns fake backends and counts constructions.
type countingBuilder struct {
	builds atomic.Int64
	mu     sync.Mutex
	last   map[string]*fakeBackend
}

func (b *countingBuilder) build(_ context.Context, ic InstanceConfig, _ Deps) (backend.Backend, error) {
	b.builds.Add(1)
	fb := newFake()
	b.mu.Lock()
	if b.last == nil {
		b.last = make(map[string]*fakeBackend)
	}
	b.last[ic.Name] = fb
	b.mu.Unlock()
	return fb, nil
}

func fakeFactory(t *testing.T, cfg Config, opts ...Option) (*Factory, *countingBuilder) {
	t.Helper()
	cb := &countingBuilder{}
	f, err := NewFactory(cfg, append([]Option{WithBuilder("fake", cb.build)}, opts...)...)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return f, cb
}

func TestFactoryValidation(t *testing.T) {
	withFake := WithBuilder("fake", (&countingBuilder{}).build)
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no instances", Config{}},
		{"several without default", Config{Instances: []InstanceConfig{
			{Name: "a", Backend: "fake"}, {Name: "b", Backend: "fake"},
		}}},
		{"duplicate", Config{Instances: []InstanceConfig{
			{Name: "", Backend: "fake"}, {Name: "", Backend: "fake"},
		}}},
		{"unknown backend", Config{Instances: []InstanceConfig{{Backend: "nope"}}}},
		{"missing backend", Config{Instances: []InstanceConfig{{Name: "a"}}}},
		{"bad serializer", Config{Instances: []InstanceConfig{{Backend: "fake", Serializer: "xml"}}}},
		{"negative ttl", Config{Instances: []InstanceConfig{{Backend: "fake", DefaultTTL: -time.Second}}}},
		{"redis without servers", Config{Instances: []InstanceConfig{{Backend: KindRedis}}}},
		{"bad health mode", Config{Instances: []InstanceConfig{{Backend: "fake", Health: HealthConfig{Mode: "sometimes"}}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewFactory(tc.cfg, withFake)
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("want ConfigError, got %v", err)
			}
		})
	}
}

func TestFactoryDefaultResolution(t *testing.T) {
	ctx := context.Background()
	f, cb := fakeFactory(t, Config{Instances: []InstanceConfig{
		{Name: "", Backend: "fake"},
		{Name: "users", Backend: "fake"},
	}})

	def, err := f.Instance(ctx, "")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	users, err := f.Instance(ctx, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if def == users {
		t.Fatalf("default and users must be distinct instances")
	}
	if _, err := f.Instance(ctx, "orders"); err == nil {
		t.Fatalf("unknown instance must fail")
	}
	if cb.builds.Load() != 2 {
		t.Fatalf("builds = %d, want 2", cb.builds.Load())
	}
}

func TestFactorySingleInstanceServesDefault(t *testing.T) {
	ctx := context.Background()
	f, cb := fakeFactory(t, Config{Instances: []InstanceConfig{{Name: "users", Backend: "fake"}}})

	a, err := f.Instance(ctx, "")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	b, err := f.Instance(ctx, "users")
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if a != b || a.Name() != "users" || cb.builds.Load() != 1 {
		t.Fatalf("single instance must serve both names (same=%v name=%q builds=%d)", a == b, a.Name(), cb.builds.Load())
	}
}

func TestFactoryBuildsOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f, cb := fakeFactory(t, Config{Instances: []InstanceConfig{{Backend: "fake"}}})

	var wg sync.WaitGroup
	got := make([]*Instance, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in, err := f.Instance(ctx, "")
			if err != nil {
				t.Errorf("Instance: %v", err)
			}
			got[i] = in
		}(i)
	}
	wg.Wait()
	for _, in := range got[1:] {
		if in != got[0] {
			t.Fatalf("resolutions returned different instances")
		}
	}
	if cb.builds.Load() != 1 {
		t.Fatalf("builds = %d, want 1", cb.builds.Load())
	}
}

func TestOpenSharesInstanceAcrossViews(t *testing.T) {
	ctx := context.Background()
	f, _ := fakeFactory(t, Config{Instances: []InstanceConfig{{Name: "p", Backend: "fake", DefaultTTL: time.Minute}}})

	w, err := Open[string](ctx, f, "p")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	r, err := Open[string](ctx, f, "")
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	_ = w.Put(ctx, "k", "v", 0)
	if err := w.Close(ctx); err != nil {
		t.Fatalf("view Close: %v", err)
	}
	if v, ok := r.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("Get through second view = %q,%v", v, ok)
	}
}

func TestDisabledFactory(t *testing.T) {
	ctx := context.Background()
	cb := &countingBuilder{}
	f, err := NewFactory(Config{
		Disabled:  true,
		Instances: []InstanceConfig{{Name: "a", Backend: "fake"}, {Name: "b", Backend: "fake"}},
	}, WithBuilder("fake", cb.build))
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	if f.Enabled() {
		t.Fatalf("factory must report disabled")
	}

	c, err := Open[int](ctx, f, "a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Put(ctx, "k", 1, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("disabled cache must never hit")
	}
	got, err := c.GetMany(ctx, []string{"k", "j"})
	if err != nil || len(got) != 2 || got["k"].Found {
		t.Fatalf("GetMany = %v, %v", got, err)
	}
	if err := c.Put(ctx, "k", 1, -1); !errors.Is(err, ErrNegativeTTL) {
		t.Fatalf("negative ttl still rejected, got %v", err)
	}
	if s := c.Statistics(ctx); s.Available {
		t.Fatalf("disabled statistics must be unavailable")
	}
	if cb.builds.Load() != 0 {
		t.Fatalf("disabled factory built %d backends", cb.builds.Load())
	}
}

func TestFactoryStatisticsAndClose(t *testing.T) {
	ctx := context.Background()
	f, err := NewFactory(Config{Instances: []InstanceConfig{
		{Name: "", Backend: KindMemory, Memory: MemoryConfig{Metrics: true}},
		{Name: "lazy", Backend: KindMemory},
	}})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}

	c, err := Open[string](ctx, f, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = c.Put(ctx, "a", "1", 0)
	c.Get(ctx, "a")

	stats := f.Statistics(ctx)
	if len(stats) != 1 {
		t.Fatalf("only built instances report, got %v", stats)
	}
	s := stats[""]
	if !s.Available || s.HitCount != 1 {
		t.Fatalf("default stats = %+v", s)
	}

	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := f.Instance(ctx, "lazy"); !errors.Is(err, ErrFactoryClosed) {
		t.Fatalf("want ErrFactoryClosed, got %v", err)
	}
	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatalf("views over closed instances must miss")
	}
}

func TestFactoryPollMonitorMarksDown(t *testing.T) {
	ctx := context.Background()
	var down atomic.Bool
	mon := WithMonitor(func(ic InstanceConfig, be backend.Backend, _ Logger) (health.Monitor, error) {
		return health.NewPoller(func(context.Context) error {
			if down.Load() {
				return errors.New("unreachable")
			}
			return nil
		}, health.PollerOptions{Interval: 5 * time.Millisecond}), nil
	})
	f, _ := fakeFactory(t, Config{Instances: []InstanceConfig{{Backend: "fake"}}}, mon)

	in, err := f.Instance(ctx, "")
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	if !in.Available() {
		t.Fatalf("expected available after first ping")
	}
	down.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for in.Available() {
		if time.Now().After(deadline) {
			t.Fatalf("poller never marked the backend down")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFactoryPollRequiresPinger(t *testing.T) {
	f, _ := fakeFactory(t, Config{Instances: []InstanceConfig{{Backend: "fake", Health: HealthConfig{Mode: HealthPoll}}}})
	_, err := f.Instance(context.Background(), "")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigError for unpingable backend, got %v", err)
	}
}

func TestFactoryRedisEndToEnd(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	f, err := NewFactory(Config{Instances: []InstanceConfig{{
		Name:       "sessions",
		Backend:    KindRedis,
		Servers:    []string{mr.Addr()},
		Serializer: "cbor",
		Health:     HealthConfig{Mode: HealthPoll, Interval: time.Hour},
	}}})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { _ = f.Close(ctx) })

	in, err := f.Instance(ctx, "sessions")
	if err != nil {
		t.Fatalf("Instance: %v", err)
	}
	c := Of[user](in)
	if err := c.PutMany(ctx, map[string]user{"1": {ID: "1", Name: "a"}, "2": {ID: "2", Name: "b"}}, time.Minute); err != nil {
		t.Fatalf("PutMany: %v", err)
	}
	// fire-and-forget by default; wait for the writer
	if err := in.Backend().(*redis.Redis).Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !mr.Exists("8:sessions:1") {
		t.Fatalf("expected wire key in redis, have %v", mr.Keys())
	}

	got, err := c.GetMany(ctx, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if !got["1"].Found || got["2"].Value.Name != "b" || got["3"].Found {
		t.Fatalf("GetMany = %+v", got)
	}

	c.Clear(ctx) // not supported on redis; must not flush
	if !mr.Exists("8:sessions:2") {
		t.Fatalf("clear must not flush a shared redis")
	}
}

func TestFactoryRedisReadsOwnWritesWithoutSync(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	f, err := NewFactory(Config{Instances: []InstanceConfig{{
		Name:    "sessions",
		Backend: KindRedis,
		Servers: []string{mr.Addr()},
	}}})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	t.Cleanup(func() { _ = f.Close(ctx) })

	c, err := Open[string](ctx, f, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var wg sync.WaitGroup
	var missed, stale atomic.Int64
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				k := fmt.Sprintf("%d/%d", g, i)
				_ = c.Put(ctx, k, "v1", 10*time.Second)
				if v, ok := c.Get(ctx, k); !ok || v != "v1" {
					missed.Add(1)
				}
				c.Remove(ctx, k)
				if _, ok := c.Get(ctx, k); ok {
					stale.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()
	if missed.Load() != 0 || stale.Load() != 0 {
		t.Fatalf("put-then-get misses=%d remove-then-get stale=%d", missed.Load(), stale.Load())
	}
}

func TestSlowBuildDoesNotBlockOtherInstances(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})
	slow := WithBuilder("slow", func(context.Context, InstanceConfig, Deps) (backend.Backend, error) {
		close(started)
		<-release
		return newFake(), nil
	})
	f, _ := fakeFactory(t, Config{Instances: []InstanceConfig{
		{Name: "", Backend: "fake"},
		{Name: "b", Backend: "slow"},
	}}, slow)

	if _, err := f.Instance(ctx, ""); err != nil {
		t.Fatalf("default: %v", err)
	}
	slowDone := make(chan error, 1)
	go func() {
		_, err := f.Instance(ctx, "b")
		slowDone <- err
	}()
	<-started

	resolved := make(chan error, 1)
	go func() {
		_, err := f.Instance(ctx, "")
		resolved <- err
	}()
	select {
	case err := <-resolved:
		if err != nil {
			t.Fatalf("default during slow build: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("resolving a built instance waited for another instance's build")
	}

	close(release)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow build: %v", err)
	}
}
