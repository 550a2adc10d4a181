package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces every environment override, e.g. MINERVA_BACKEND_URL.
const EnvPrefix = "MINERVA_"

// Store drivers understood by the session store factory.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Config is the full client configuration. Keys are single words per level so
// that MINERVA_SECTION_KEY maps onto section.key without ambiguity.
type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Store     StoreConfig     `koanf:"store"`
	Redis     RedisConfig     `koanf:"redis"`
	Session   SessionConfig   `koanf:"session"`
	Expiry    ExpiryConfig    `koanf:"expiry"`
	Log       LogConfig       `koanf:"log"`
	Audit     AuditConfig     `koanf:"audit"`
	Authority AuthorityConfig `koanf:"authority"`
}

// BackendConfig points the identity clients at the remote authority.
type BackendConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig selects the persistent session store.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	Dir    string `koanf:"dir"`
	Prefix string `koanf:"prefix"`
	Sync   bool   `koanf:"sync"`
}

// RedisConfig configures the shared session store.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"poolsize"`
	MinIdleConns int           `koanf:"minidle"`
	DialTimeout  time.Duration `koanf:"dialtimeout"`
	ReadTimeout  time.Duration `koanf:"readtimeout"`
	WriteTimeout time.Duration `koanf:"writetimeout"`
}

// SessionConfig tunes the linking state machine.
type SessionConfig struct {
	LogoutCooldown  time.Duration `koanf:"cooldown"`
	DisconnectGrace time.Duration `koanf:"grace"`
	SkipKYC         bool          `koanf:"skipkyc"`
}

// ExpiryConfig tunes the expiry monitor.
type ExpiryConfig struct {
	Interval    time.Duration `koanf:"interval"`
	Warning     time.Duration `koanf:"warning"`
	AutoRefresh bool          `koanf:"autorefresh"`
}

// LogConfig selects slog level and handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuditConfig enables forwarding session events to Kafka.
type AuditConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// AuthorityConfig configures the fake remote authority.
type AuthorityConfig struct {
	Addr       string        `koanf:"addr"`
	SigningKey string        `koanf:"key"`
	TokenTTL   time.Duration `koanf:"ttl"`
	RefreshTTL time.Duration `koanf:"refreshttl"`
	NonceTTL   time.Duration `koanf:"noncettl"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			URL:     "http://localhost:3001",
			Timeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreBadger,
			Dir:    ".minerva/session",
			Prefix: "",
			Sync:   true,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 1,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Session: SessionConfig{
			LogoutCooldown:  5 * time.Minute,
			DisconnectGrace: 10 * time.Second,
		},
		Expiry: ExpiryConfig{
			Interval: 30 * time.Second,
			Warning:  5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			Topic: "minerva.session.audit",
		},
		Authority: AuthorityConfig{
			Addr:       ":3001",
			SigningKey: "dev-secret-key-change-in-production",
			TokenTTL:   time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
			NonceTTL:   5 * time.Minute,
		},
	}
}

// FromEnv builds a Config from defaults and MINERVA_* environment variables so
// main stays lean.
func FromEnv() (Config, error) {
	return Load("")
}

// Load layers defaults, then the YAML file at path (if any), then environment
// variables.
func Load(path string) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Audit.Brokers = splitList(cfg.Audit.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the factories cannot build.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory:
	case StoreBadger:
		if c.Store.Dir == "" {
			return fmt.Errorf("store.dir is required for the badger driver")
		}
	case StoreRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis.url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if c.Expiry.Interval <= 0 {
		return fmt.Errorf("expiry.interval must be positive")
	}
	return nil
}

// splitList flattens comma-separated entries, trims them and drops blanks and
// duplicates, keeping order. MINERVA_AUDIT_BROKERS="a:9092, b:9092" and a
// YAML list both end up as clean broker addresses.
func splitList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
