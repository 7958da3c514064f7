// Package serial converts cache values to and from bytes for byte-oriented
// backends (memcached, redis, bigcache).
//
// Serializers may be stateful (buffers, encoder/decoder state) and are not safe
// for concurrent use; callers borrow them from a Pool. Every payload produced
// by a Pool is framed with its format id, so a value written by one format and
// read back by another is reported as a serialization error instead of being
// decoded into garbage.
package serial

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSerialization marks encode/decode failures. Backends wrap it so the cache
// core can tell a bad value apart from a failing transport.
var ErrSerialization = errors.New("serial: serialization failed")

// Serializer encodes arbitrary values to bytes and back.
// Implementations need not be safe for concurrent use.
type Serializer interface {
	Format() Format
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into dst, which must be a non-nil pointer.
	Unmarshal(data []byte, dst any) error
}

// Format identifies a serializer on the wire.
type Format byte

const (
	FormatMsgpack  Format = 1
	FormatCBOR     Format = 2
	FormatJSON     Format = 3
	FormatProtobuf Format = 4
)

func (f Format) String() string {
	switch f {
	case FormatMsgpack:
		return "msgpack"
	case FormatCBOR:
		return "cbor"
	case FormatJSON:
		return "json"
	case FormatProtobuf:
		return "protobuf"
	default:
		return fmt.Sprintf("format(%d)", byte(f))
	}
}

// New returns a fresh serializer for f.
func (f Format) New() (Serializer, error) {
	switch f {
	case FormatMsgpack:
		return NewMsgpack(), nil
	case FormatCBOR:
		return NewCBOR(false)
	case FormatJSON:
		return JSON{}, nil
	case FormatProtobuf:
		return Protobuf{}, nil
	default:
		return nil, fmt.Errorf("serial: unknown format %s", f)
	}
}

// ParseFormat maps a configuration name to a Format. Empty selects msgpack.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return FormatMsgpack, nil
	case "cbor":
		return FormatCBOR, nil
	case "json":
		return FormatJSON, nil
	case "protobuf", "proto":
		return FormatProtobuf, nil
	default:
		return 0, fmt.Errorf("serial: unknown serializer %q", name)
	}
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrSerialization, op, err)
}
