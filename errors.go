package nscache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProtocol marks request/response desynchronization on batch reads.
	// It is the one backend condition the cache does not absorb.
	ErrProtocol = errors.New("nscache: protocol error")

	ErrNegativeTTL = errors.New("nscache: negative ttl")

	ErrFactoryClosed = errors.New("nscache: factory closed")

	// ErrTypeMismatch is reported (via hooks/logs, as a miss) when an
	// in-process backend holds a value of another type under the key.
	ErrTypeMismatch = errors.New("nscache: cached value has unexpected type")
)

// ConfigError is a misconfiguration detected at factory construction or at
// first resolution of an instance.
type ConfigError struct {
	Instance string
	Reason   string
	Err      error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("nscache: config")
	if e.Instance != "" {
		fmt.Fprintf(&b, " (instance %q)", e.Instance)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CardinalityError is returned by GetMany when a batch reply does not line up
// with the request: a positional reply of the wrong length, or a keyed reply
// containing keys that were never asked for.
type CardinalityError struct {
	Instance   string
	Requested  int
	Returned   int
	Unexpected []string // wire keys, keyed replies only
}

func (e *CardinalityError) Error() string {
	if len(e.Unexpected) > 0 {
		return fmt.Sprintf("nscache: instance %q: batch reply contains %d unrequested keys (%s)",
			e.Instance, len(e.Unexpected), strings.Join(e.Unexpected, ", "))
	}
	return fmt.Sprintf("nscache: instance %q: batch reply has %d values for %d keys",
		e.Instance, e.Returned, e.Requested)
}

func (e *CardinalityError) Unwrap() error { return ErrProtocol }
