package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/nscache"
)

func TestLogrusAdapter(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	cause := errors.New("conn refused")
	l.Warn("cache get failed", nscache.Fields{"instance": "users", "err": cause, "skip": nil})

	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel || e.Message != "cache get failed" {
		t.Fatalf("entry = %+v", e)
	}
	if e.Data[logrus.ErrorKey] != cause {
		t.Fatalf("error not under %q: %v", logrus.ErrorKey, e.Data)
	}
	if e.Data["component"] != "nscache" || e.Data["instance"] != "users" {
		t.Fatalf("fields = %v", e.Data)
	}
	if _, ok := e.Data["skip"]; ok {
		t.Fatalf("nil fields must be dropped")
	}

	l.Debug("d", nil)
	l.Info("i", nil)
	l.Error("e", nil)
	if n := len(hook.AllEntries()); n != 4 {
		t.Fatalf("entries = %d, want 4", n)
	}
}
