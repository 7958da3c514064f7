package nscache

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/nscache/keys"
	"github.com/unkn0wn-root/nscache/serial"
)

// Backend kinds understood by the default builders.
const (
	KindMemory    = "memory"
	KindBigCache  = "bigcache"
	KindMemcached = "memcached"
	KindRedis     = "redis"
)

// Health monitor modes.
const (
	HealthAlways  = "always"
	HealthPoll    = "poll"
	HealthBreaker = "breaker"
)

// Config describes every cache instance of an application.
//
//	disabled: false
//	instances:
//	  - name: users
//	    backend: redis
//	    servers: ["127.0.0.1:6379"]
//	    default_ttl: 10m
//	    health: {mode: poll, interval: 5s}
type Config struct {
	// Disabled turns every cache into a no-op; default false (enabled).
	Disabled  bool             `yaml:"disabled"`
	Instances []InstanceConfig `yaml:"instances"`
}

type InstanceConfig struct {
	// Name is the namespace. "" is the default instance; with a single
	// configured instance, that instance also serves "".
	Name    string   `yaml:"name"`
	Backend string   `yaml:"backend"`
	Servers []string `yaml:"servers"`

	DefaultTTL time.Duration `yaml:"default_ttl"`

	// Serializer for byte backends: msgpack (default), cbor, json, protobuf.
	Serializer string `yaml:"serializer"`
	// PoolSize bounds idle serializers kept for reuse; 0 => serial.DefaultPoolSize.
	PoolSize int `yaml:"pool_size"`

	// MaxKeyLength hashes wire keys longer than this; 0 => backend default
	// (250 for memcached, unlimited otherwise).
	MaxKeyLength int `yaml:"max_key_length"`
	// MaxValueBytes rejects stored frames above this size on read (as a miss);
	// 0 disables the check.
	MaxValueBytes int `yaml:"max_value_bytes"`

	Health    HealthConfig    `yaml:"health"`
	Memory    MemoryConfig    `yaml:"memory"`
	BigCache  BigCacheConfig  `yaml:"bigcache"`
	Memcached MemcachedConfig `yaml:"memcached"`
	Redis     RedisConfig     `yaml:"redis"`
}

type HealthConfig struct {
	Mode     string        `yaml:"mode"`     // always (default), poll, breaker
	Interval time.Duration `yaml:"interval"` // poll period; breaker open duration
	Timeout  time.Duration `yaml:"timeout"`  // per ping
	Failures int           `yaml:"failures"` // consecutive failures before marking down
}

type MemoryConfig struct {
	MaxItems    int64 `yaml:"max_items"`
	NumCounters int64 `yaml:"num_counters"`
	BufferItems int64 `yaml:"buffer_items"`
	Metrics     bool  `yaml:"metrics"`
}

type BigCacheConfig struct {
	LifeWindow   time.Duration `yaml:"life_window"`
	CleanWindow  time.Duration `yaml:"clean_window"`
	Shards       int           `yaml:"shards"`
	MaxEntrySize int           `yaml:"max_entry_size"`
	HardMaxMB    int           `yaml:"hard_max_mb"`
}

type MemcachedConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	DB       int    `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	PoolSize int    `yaml:"pool_size"`
	// AckWrites makes writes wait for the server. Off by default: writes are
	// queued and acknowledged asynchronously (fire-and-forget).
	AckWrites bool `yaml:"ack_writes"`
	QueueSize int  `yaml:"queue_size"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("nscache: read config: %w", err)
	}
	return ParseConfig(b)
}

// ParseConfig decodes YAML. Unknown fields are rejected.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, &ConfigError{Reason: "parse yaml", Err: err}
	}
	return cfg, nil
}

func (c InstanceConfig) serialFormat() (serial.Format, error) {
	if c.Serializer == "" {
		return serial.FormatMsgpack, nil
	}
	return serial.ParseFormat(c.Serializer)
}

func (c InstanceConfig) keyOptions() []keys.Option {
	n := c.MaxKeyLength
	if n == 0 && c.Backend == KindMemcached {
		n = keys.MemcachedMaxLength
	}
	if n <= 0 {
		return nil
	}
	return []keys.Option{keys.WithMaxLength(n)}
}

func (c InstanceConfig) validate(known func(kind string) bool) error {
	fail := func(reason string, err error) error {
		return &ConfigError{Instance: c.Name, Reason: reason, Err: err}
	}
	switch {
	case c.Backend == "":
		return fail("backend is required", nil)
	case !known(c.Backend):
		return fail(fmt.Sprintf("unknown backend %q", c.Backend), nil)
	case c.DefaultTTL < 0:
		return fail("default_ttl must not be negative", nil)
	case c.PoolSize < 0:
		return fail("pool_size must not be negative", nil)
	case c.MaxKeyLength < 0 || c.MaxValueBytes < 0:
		return fail("size limits must not be negative", nil)
	case (c.Backend == KindRedis || c.Backend == KindMemcached) && len(c.Servers) == 0:
		return fail(c.Backend+" needs at least one server", nil)
	}
	if _, err := c.serialFormat(); err != nil {
		return fail("serializer", err)
	}
	switch c.Health.Mode {
	case "", HealthAlways, HealthPoll, HealthBreaker:
	default:
		return fail(fmt.Sprintf("unknown health mode %q", c.Health.Mode), nil)
	}
	if c.Health.Interval < 0 || c.Health.Timeout < 0 || c.Health.Failures < 0 {
		return fail("health settings must not be negative", nil)
	}
	return nil
}
