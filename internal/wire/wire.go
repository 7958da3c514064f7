package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1
	hdrLen       = 4 + 1 + 1 + 4
)

var (
	ErrCorrupt = errors.New("nscache: corrupt payload")
	// ErrFormat is returned when a frame was written by a different serializer format.
	ErrFormat = errors.New("nscache: payload format mismatch")
	magic4    = [...]byte{'N', 'S', 'C', 'F'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames a serialized payload:
//
//	magic(4) | ver(1) | format(1) | vlen(u32 be) | payload(vlen)
func Encode(format byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(format)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode validates the frame header and returns the payload slice (not copied).
// A frame carrying a different format id yields ErrFormat.
func Decode(format byte, b []byte) ([]byte, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return nil, ErrCorrupt
	}
	if b[5] != format {
		return nil, ErrFormat
	}

	off := 6
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// exact length; trailing bytes mean the frame was tampered with or truncated upstream
	if vlen < 0 || vlen != len(b)-off {
		return nil, ErrCorrupt
	}
	return b[off : off+vlen], nil
}

// Format reports the format id of a frame without validating the payload.
func Format(b []byte) (byte, bool) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return 0, false
	}
	return b[5], true
}
