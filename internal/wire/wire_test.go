package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func mustDecode(t *testing.T, format byte, b []byte) []byte {
	t.Helper()
	p, err := Decode(format, b)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	return p
}

func TestRoundTripEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		format  byte
		payload []byte
	}{
		{1, nil},
		{2, []byte("hello")},
		{255, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		enc := Encode(tc.format, tc.payload)
		p := mustDecode(t, tc.format, enc)
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
		if f, ok := Format(enc); !ok || f != tc.format {
			t.Fatalf("Format: got %d ok=%v want %d", f, ok, tc.format)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(1, []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, err := Decode(1, enc); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on trailing bytes, got %v", err)
	}
}

func TestCorruptHeadersAndLengths(t *testing.T) {
	enc := Encode(1, []byte("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := Decode(1, badMagic); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on bad magic, got %v", err)
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := Decode(1, badVer); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on bad version, got %v", err)
	}

	// declared length larger than the remaining bytes
	long := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(long[6:10], 1000)
	if _, err := Decode(1, long); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on oversized vlen, got %v", err)
	}

	if _, err := Decode(1, enc[:hdrLen-1]); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt on short header")
	}
	if _, ok := Format([]byte("raw")); ok {
		t.Fatalf("Format should reject non-frames")
	}
}

func TestFormatMismatch(t *testing.T) {
	enc := Encode(1, []byte("abc"))
	if _, err := Decode(2, enc); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestDecodeDoesNotCopy(t *testing.T) {
	enc := Encode(3, []byte("abc"))
	p := mustDecode(t, 3, enc)
	p[0] = 'z'
	if enc[hdrLen] != 'z' {
		t.Fatalf("payload should alias the frame")
	}
}
