package memory

import (
	"context"
	"testing"
	"time"
)

func newTestMemory(t *testing.T, metrics bool) *Memory {
	t.Helper()
	m, err := New(Config{MaxItems: 1000, Metrics: metrics})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

type blob struct{ n int }

func TestPutGetStoresReference(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, false)

	v := &blob{n: 1}
	if ok, err := m.Put(ctx, "k", v, 0); err != nil || !ok {
		t.Fatalf("Put ok=%v err=%v", ok, err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get ok=%v err=%v", ok, err)
	}
	if got.(*blob) != v {
		t.Fatalf("expected the same reference back")
	}
}

func TestTTLExpires(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, false)

	if ok, _ := m.Put(ctx, "short", "v", 50*time.Millisecond); !ok {
		t.Fatalf("Put rejected")
	}
	if _, ok, _ := m.Get(ctx, "short"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestRemoveAbsentAndClear(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, false)

	if err := m.Remove(ctx, "never"); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}
	_, _ = m.Put(ctx, "a", 1, 0)
	_, _ = m.Put(ctx, "b", 2, 0)
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, ok, _ := m.Get(ctx, k); ok {
			t.Fatalf("%s survived Clear", k)
		}
	}
}

func TestStatsUnavailableWithoutMetrics(t *testing.T) {
	m := newTestMemory(t, false)
	s, err := m.Stats(context.Background())
	if err != nil || s.Available {
		t.Fatalf("expected unavailable stats, got %+v err=%v", s, err)
	}
}

func TestStatsWithMetrics(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, true)

	_, _ = m.Put(ctx, "a", 1, 0)
	_, _, _ = m.Get(ctx, "a")
	_, _, _ = m.Get(ctx, "missing")

	s, err := m.Stats(ctx)
	if err != nil || !s.Available {
		t.Fatalf("expected available stats, got %+v err=%v", s, err)
	}
	if s.HitCount != 1 || s.GetCount != 2 {
		t.Fatalf("hits=%d gets=%d want 1/2", s.HitCount, s.GetCount)
	}
	if len(s.Nodes) != 1 || s.Nodes[0].Server != nodeName {
		t.Fatalf("unexpected nodes %+v", s.Nodes)
	}
}

func TestCloseTwice(t *testing.T) {
	m, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
