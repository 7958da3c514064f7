// Package zap adapts a *zap.Logger to nscache.Logger.
package zap

import (
	"slices"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/nscache"
)

var _ nscache.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New names the logger "nscache". A nil logger logs nowhere.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.Named("nscache")}
}

func (z Logger) Debug(msg string, f nscache.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f nscache.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f nscache.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f nscache.Fields) { z.L.Error(msg, fields(f)...) }

// fields sorts keys so repeated events encode identically. Errors are
// encoded with zap's error encoder; nil errors are dropped.
func fields(f nscache.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case nil:
			continue
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
