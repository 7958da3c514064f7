package serial

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/unkn0wn-root/nscache/internal/wire"
)

// DefaultPoolSize is used when a non-positive max is passed to NewPool.
const DefaultPoolSize = 16

// Pool is a bounded set of reusable serializers, safe for concurrent use.
//
// Acquire never blocks: an idle serializer is handed out when one exists,
// otherwise a new one is allocated. Release keeps at most max idle instances
// and discards the rest, so the resident set never grows past max no matter
// how many transient instances were created under load.
type Pool struct {
	format Format
	newFn  func() Serializer
	idle   chan Serializer
	limit  int // max frame size accepted by Unmarshal; 0 = unlimited

	allocs atomic.Int64
}

// ErrTooLarge is returned (wrapped in ErrSerialization) for frames above the
// pool's decode limit.
var ErrTooLarge = errors.New("serial: payload too large")

// NewPool builds a pool of serializers for f.
func NewPool(f Format, max int) (*Pool, error) {
	if _, err := f.New(); err != nil {
		return nil, err
	}
	return NewPoolFunc(func() Serializer {
		s, _ := f.New() // validated above
		return s
	}, max), nil
}

// NewPoolFunc builds a pool around a custom constructor. The format is taken
// from the first instance, which is kept as the first idle serializer.
func NewPoolFunc(newFn func() Serializer, max int) *Pool {
	max = coalesce(max, DefaultPoolSize)
	if max < 0 {
		max = DefaultPoolSize
	}
	first := newFn()
	p := &Pool{
		format: first.Format(),
		newFn:  newFn,
		idle:   make(chan Serializer, max),
	}
	p.allocs.Add(1)
	p.idle <- first
	return p
}

func (p *Pool) Format() Format { return p.format }

// Limit caps the size of frames Unmarshal accepts, guarding against oversized
// values in a shared store. n <= 0 disables the check. Call before first use.
func (p *Pool) Limit(n int) *Pool {
	p.limit = max(n, 0)
	return p
}

// Cap is the maximum number of idle serializers retained.
func (p *Pool) Cap() int { return cap(p.idle) }

// Idle is the number of serializers currently parked in the pool.
func (p *Pool) Idle() int { return len(p.idle) }

// Allocs is the number of serializers ever constructed by the pool.
func (p *Pool) Allocs() int64 { return p.allocs.Load() }

func (p *Pool) Acquire() Serializer {
	select {
	case s := <-p.idle:
		return s
	default:
		p.allocs.Add(1)
		return p.newFn()
	}
}

func (p *Pool) Release(s Serializer) {
	if s == nil {
		return
	}
	select {
	case p.idle <- s:
	default: // pool full; drop
	}
}

// With runs fn with a borrowed serializer and returns it on every exit path,
// panics included.
func (p *Pool) With(fn func(Serializer) error) error {
	s := p.Acquire()
	defer p.Release(s)
	return fn(s)
}

// Marshal serializes v and frames it with the pool's format id.
func (p *Pool) Marshal(v any) ([]byte, error) {
	var out []byte
	err := p.With(func(s Serializer) error {
		b, err := s.Marshal(v)
		if err != nil {
			return wrap("marshal", err)
		}
		out = wire.Encode(byte(p.format), b)
		return nil
	})
	return out, err
}

// Unmarshal validates the frame and decodes its payload into dst.
func (p *Pool) Unmarshal(data []byte, dst any) error {
	if p.limit > 0 && len(data) > p.limit {
		return wrap("frame", fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), p.limit))
	}
	payload, err := wire.Decode(byte(p.format), data)
	if errors.Is(err, wire.ErrFormat) {
		got, _ := wire.Format(data)
		return wrap("frame", fmt.Errorf("%w: written as %s, decoding as %s", err, Format(got), p.format))
	}
	if err != nil {
		return wrap("frame", err)
	}
	return p.With(func(s Serializer) error {
		if err := s.Unmarshal(payload, dst); err != nil {
			return wrap("unmarshal", err)
		}
		return nil
	})
}

// Payload wraps raw bytes read from a backend so they can be decoded once the
// caller's value type is known.
func (p *Pool) Payload(data []byte) *Payload {
	return &Payload{data: data, pool: p}
}

// Payload is a serialized value read from a byte-oriented backend.
type Payload struct {
	data []byte
	pool *Pool
}

func (p *Payload) Bytes() []byte { return p.data }

// Decode deserializes the payload into dst (a non-nil pointer).
func (p *Payload) Decode(dst any) error { return p.pool.Unmarshal(p.data, dst) }

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
