// Package sloghooks logs cache events with log/slog, sampling the noisy ones
// and redacting keys.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/nscache"
	"github.com/unkn0wn-root/nscache/keys"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	BackendErrorEvery uint64
	DecodeErrorEvery  uint64
	UnavailableEvery  uint64
	// Optional key redactor. Defaults to SHA-256 prefix of the logical key.
	Redact func(string) string
	// LogTraffic logs every hit/miss at debug level.
	LogTraffic bool
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	backendErrCtr  atomic.Uint64
	decodeErrCtr   atomic.Uint64
	unavailableCtr atomic.Uint64
}

var _ nscache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

// redact hides the logical part of a wire key; the instance stays readable.
func (h *Hooks) redact(wireKey string) string {
	inst, key, ok := keys.Decode(wireKey)
	if !ok {
		// hashed or foreign keys carry no user data in clear
		return wireKey
	}
	if h.opts.Redact != nil {
		return inst + ":" + h.opts.Redact(key)
	}
	sum := sha256.Sum256([]byte(key))
	return inst + ":" + hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Hit(instance string, n int) {
	if h.l == nil || !h.opts.LogTraffic {
		return
	}
	h.l.Debug("nscache.hit", "instance", instance, "n", n)
}

func (h *Hooks) Miss(instance string, n int) {
	if h.l == nil || !h.opts.LogTraffic {
		return
	}
	h.l.Debug("nscache.miss", "instance", instance, "n", n)
}

func (h *Hooks) Unavailable(instance, op string) {
	if h.l == nil || !sample(h.opts.UnavailableEvery, &h.unavailableCtr) {
		return
	}
	h.l.Info("nscache.unavailable",
		"instance", instance,
		"op", op)
}

func (h *Hooks) BackendError(instance, op string, err error) {
	if h.l == nil || !sample(h.opts.BackendErrorEvery, &h.backendErrCtr) {
		return
	}
	h.l.Warn("nscache.backend_error",
		"instance", instance,
		"op", op,
		"err", err)
}

func (h *Hooks) DecodeError(instance, wireKey string, err error) {
	if h.l == nil || !sample(h.opts.DecodeErrorEvery, &h.decodeErrCtr) {
		return
	}
	h.l.Warn("nscache.decode_error",
		"instance", instance,
		"key", h.redact(wireKey),
		"err", err)
}

func (h *Hooks) WriteRejected(instance, wireKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("nscache.write_rejected",
		"instance", instance,
		"key", h.redact(wireKey))
}

func (h *Hooks) Unsupported(instance, op string) {
	if h.l == nil {
		return
	}
	h.l.Warn("nscache.unsupported",
		"instance", instance,
		"op", op)
}
