package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/nscache"
)

func TestLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core))

	l.Debug("d", nil)
	l.Info("i", nscache.Fields{"instance": "users"})
	l.Warn("w", nscache.Fields{"instance": "users", "err": errors.New("timeout"), "key": "42"})
	l.Error("e", nscache.Fields{"err": nil})

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, e := range entries {
		if e.Level != wantLevels[i] {
			t.Fatalf("entry %d level = %v, want %v", i, e.Level, wantLevels[i])
		}
		if e.LoggerName != "nscache" {
			t.Fatalf("logger name = %q", e.LoggerName)
		}
	}

	warn := entries[2].ContextMap()
	if warn["err"] != "timeout" || warn["key"] != "42" || warn["instance"] != "users" {
		t.Fatalf("warn fields = %v", warn)
	}
	if len(entries[3].Context) != 0 {
		t.Fatalf("nil error must be dropped, got %v", entries[3].Context)
	}
}

func TestFieldOrderIsStable(t *testing.T) {
	f := fields(nscache.Fields{"z": 1, "a": 2, "m": 3})
	if f[0].Key != "a" || f[1].Key != "m" || f[2].Key != "z" {
		t.Fatalf("unsorted fields: %v", f)
	}
}

func TestNilLogger(t *testing.T) {
	New(nil).Warn("dropped", nscache.Fields{"k": "v"})
}
