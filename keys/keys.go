// Package keys turns logical cache keys into wire keys.
//
// A wire key is the instance name, length-prefixed, followed by the logical key:
//
//	<len(instance)>:<instance>:<key>     e.g. "5:users:42"
//
// Because the instance part is self-delimiting, two distinct (instance, key)
// pairs never produce the same wire key, whatever characters either contains.
//
// Text protocols (memcached) limit key length and forbid whitespace and control
// bytes. With WithMaxLength, keys that would violate those limits are hashed:
//
//	<len(instance)>:<instance>#<len(key)>:<xxhash64 hex>
//
// The '#' discriminator keeps hashed keys apart from raw ones. Two different
// logical keys can only collide in hashed form, and only on a 64-bit hash
// collision of equal-length keys.
package keys

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// MemcachedMaxLength is the memcached text protocol key limit.
const MemcachedMaxLength = 250

// Encoder is immutable and safe for concurrent use.
type Encoder struct {
	prefix string // "<n>:<instance>"
	maxLen int
	hash   func(string) uint64
}

type Option func(*Encoder)

// WithMaxLength enables hashing of keys whose wire form exceeds n bytes or
// contains bytes that are not valid in text-protocol keys.
func WithMaxLength(n int) Option {
	return func(e *Encoder) { e.maxLen = n }
}

// WithHash replaces xxhash for hashed keys. The function must be deterministic.
func WithHash(h func(string) uint64) Option {
	return func(e *Encoder) { e.hash = h }
}

func New(instance string, opts ...Option) Encoder {
	e := Encoder{
		prefix: strconv.Itoa(len(instance)) + ":" + instance,
		hash:   xxhash.Sum64String,
	}
	for _, o := range opts {
		o(&e)
	}
	return e
}

// Encode maps a logical key to its wire key. Same input, same output.
func (e Encoder) Encode(key string) string {
	wk := e.prefix + ":" + key
	if e.maxLen <= 0 || (len(wk) <= e.maxLen && printable(key)) {
		return wk
	}
	return e.prefix + "#" + strconv.Itoa(len(key)) + ":" + strconv.FormatUint(e.hash(key), 16)
}

// EncodeAll encodes keys in order.
func (e Encoder) EncodeAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = e.Encode(k)
	}
	return out
}

// Decode splits a raw (non-hashed) wire key back into instance and logical key.
func Decode(wireKey string) (instance, key string, ok bool) {
	i := strings.IndexByte(wireKey, ':')
	if i <= 0 {
		return "", "", false
	}
	n, err := strconv.Atoi(wireKey[:i])
	if err != nil || n < 0 {
		return "", "", false
	}
	rest := wireKey[i+1:]
	if len(rest) < n+1 || rest[n] != ':' {
		return "", "", false
	}
	return rest[:n], rest[n+1:], true
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= ' ' || c == 0x7f {
			return false
		}
	}
	return true
}
