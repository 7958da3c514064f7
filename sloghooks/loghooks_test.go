package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/nscache/keys"
)

func newBuf() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestRedactsLogicalKey(t *testing.T) {
	l, buf := newBuf()
	h := New(l, Options{})

	wk := keys.New("users").Encode("alice@example.com")
	h.DecodeError("users", wk, errors.New("bad frame"))

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Fatalf("key leaked: %s", out)
	}
	if !strings.Contains(out, "nscache.decode_error") || !strings.Contains(out, "key=users:") {
		t.Fatalf("unexpected record: %s", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	l, buf := newBuf()
	h := New(l, Options{Redact: func(string) string { return "***" }})
	h.WriteRejected("users", keys.New("users").Encode("42"))
	if !strings.Contains(buf.String(), "key=users:***") {
		t.Fatalf("redactor not applied: %s", buf.String())
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBuf()
	h := New(l, Options{BackendErrorEvery: 3})
	for i := 0; i < 9; i++ {
		h.BackendError("users", "get", errors.New("timeout"))
	}
	if n := strings.Count(buf.String(), "nscache.backend_error"); n != 3 {
		t.Fatalf("logged %d backend errors, want 3", n)
	}
}

func TestTrafficOptIn(t *testing.T) {
	l, buf := newBuf()
	h := New(l, Options{})
	h.Hit("users", 2)
	h.Miss("users", 1)
	if buf.Len() != 0 {
		t.Fatalf("traffic logged without LogTraffic: %s", buf.String())
	}

	New(l, Options{LogTraffic: true}).Hit("users", 2)
	if !strings.Contains(buf.String(), "nscache.hit") {
		t.Fatalf("traffic not logged: %s", buf.String())
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.Unsupported("users", "clear")
	h.BackendError("users", "get", errors.New("x"))
}
