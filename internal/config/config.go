// Package config defines service configuration and its loading.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/okian/trending/internal/adapters/repository"
	"github.com/okian/trending/internal/domain/decay"
)

// Ingestion modes.
const (
	IngestSync  = "sync"
	IngestAsync = "async"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DecayRate is the per-second exponential decay constant.
	DecayRate float64 `koanf:"decay_rate"`
	// DecayMode is "write" (score frozen at ingestion) or "read" (decayed per query).
	DecayMode string `koanf:"decay_mode"`

	// StoreBackend selects memory, redis or sqlite.
	StoreBackend   string `koanf:"store_backend"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisNamespace string `koanf:"redis_namespace"`
	SQLitePath     string `koanf:"sqlite_path"`

	// IngestMode is sync (write before responding) or async (queue + workers).
	IngestMode string `koanf:"ingest_mode"`
	// QueueSize bounds the async ingestion queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of async ingestion workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds remembered event ids; 0 disables event id dedupe.
	DedupeSize int `koanf:"dedupe_size"`

	// DefaultCount is used when GET /trending has no count.
	DefaultCount int `koanf:"default_count"`
	// MaxCount caps GET /trending?count.
	MaxCount int `koanf:"max_count"`
	// ScorePrecision is the number of decimals in responses.
	ScorePrecision int `koanf:"score_precision"`

	// EvictionSchedule is a cron expression with seconds; empty disables eviction.
	EvictionSchedule      string `koanf:"eviction_schedule"`
	EvictionMaxItems      int    `koanf:"eviction_max_items"`
	EvictionMaxAgeSeconds int64  `koanf:"eviction_max_age_seconds"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":8080",
		DecayRate:      0.0001,
		DecayMode:      string(decay.ModeWrite),
		StoreBackend:   repository.BackendMemory,
		RedisAddr:      "localhost:6379",
		RedisNamespace: "trending",
		SQLitePath:     "data/trending.db",
		IngestMode:     IngestSync,
		QueueSize:      10_000,
		WorkerCount:    runtime.NumCPU(),
		DedupeSize:     50_000,
		DefaultCount:   10,
		MaxCount:       1000,
		ScorePrecision: 6,
	}
}

// EvictionMaxAge returns the age bound as a duration.
func (c *Config) EvictionMaxAge() time.Duration {
	return time.Duration(c.EvictionMaxAgeSeconds) * time.Second
}

// EvictionEnabled reports whether a schedule and at least one bound are set.
func (c *Config) EvictionEnabled() bool {
	return c.EvictionSchedule != "" && (c.EvictionMaxItems > 0 || c.EvictionMaxAgeSeconds > 0)
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.DecayRate < 0 || c.DecayRate != c.DecayRate:
		return invalid("decay_rate must be >= 0, got %v", c.DecayRate)
	case c.DefaultCount < 0:
		return invalid("default_count must be >= 0, got %d", c.DefaultCount)
	case c.MaxCount < 1:
		return invalid("max_count must be >= 1, got %d", c.MaxCount)
	case c.DefaultCount > c.MaxCount:
		return invalid("default_count %d exceeds max_count %d", c.DefaultCount, c.MaxCount)
	case c.ScorePrecision < 0 || c.ScorePrecision > 15:
		return invalid("score_precision must be within [0, 15], got %d", c.ScorePrecision)
	case c.EvictionMaxItems < 0:
		return invalid("eviction_max_items must be >= 0, got %d", c.EvictionMaxItems)
	case c.EvictionMaxAgeSeconds < 0:
		return invalid("eviction_max_age_seconds must be >= 0, got %d", c.EvictionMaxAgeSeconds)
	}

	if _, err := decay.ParseMode(c.DecayMode); err != nil {
		return invalid("decay_mode: %v", err)
	}

	switch c.StoreBackend {
	case repository.BackendMemory:
	case repository.BackendRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required for the redis backend")
		}
	case repository.BackendSQLite:
		if c.SQLitePath == "" {
			return invalid("sqlite_path is required for the sqlite backend")
		}
	default:
		return invalid("unknown store_backend %q", c.StoreBackend)
	}

	switch c.IngestMode {
	case IngestSync:
	case IngestAsync:
		if c.QueueSize < 1 {
			return invalid("queue_size must be >= 1 in async mode, got %d", c.QueueSize)
		}
	default:
		return invalid("unknown ingest_mode %q", c.IngestMode)
	}

	switch c.LogFormat {
	case "", "text", "json":
	default:
		return invalid("unknown log_format %q", c.LogFormat)
	}
	return nil
}
