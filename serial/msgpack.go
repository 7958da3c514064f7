package serial

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack serializes with vmihailenco/msgpack/v5. It keeps one encoder and one
// decoder alive across calls, which is what makes pooling it worthwhile.
//
// Use `msgpack:"fieldName"` tags if you need explicit control over field names.
type Msgpack struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
	rd  bytes.Reader
	dec *msgpack.Decoder
}

var _ Serializer = (*Msgpack)(nil)

func NewMsgpack() *Msgpack {
	m := &Msgpack{}
	m.enc = msgpack.NewEncoder(&m.buf)
	m.enc.UseCompactInts(true)
	m.dec = msgpack.NewDecoder(&m.rd)
	return m
}

func (*Msgpack) Format() Format { return FormatMsgpack }

// Marshal returns a copy; the internal buffer is reused by the next call.
func (m *Msgpack) Marshal(v any) ([]byte, error) {
	m.buf.Reset()
	if err := m.enc.Encode(v); err != nil {
		return nil, err
	}
	out := make([]byte, m.buf.Len())
	copy(out, m.buf.Bytes())
	return out, nil
}

func (m *Msgpack) Unmarshal(data []byte, dst any) error {
	m.rd.Reset(data)
	m.dec.Reset(&m.rd)
	return m.dec.Decode(dst)
}
