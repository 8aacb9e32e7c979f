package repository

import (
	"context"
	"fmt"

	"github.com/okian/trending/pkg/metrics"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Redis      RedisConfig
	SQLitePath string
	TreapOpts  []Option
}

// New builds the configured backend and marks it active in metrics.
func New(ctx context.Context, cfg Config) (RankedStore, error) {
	var (
		s   RankedStore
		err error
	)
	switch cfg.Backend {
	case "", BackendMemory:
		s = NewTreapStore(ctx, cfg.TreapOpts...)
	case BackendRedis:
		s, err = NewRedisStore(ctx, cfg.Redis)
	case BackendSQLite:
		s, err = NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	backend := cfg.Backend
	if backend == "" {
		backend = BackendMemory
	}
	metrics.SetStoreBackend(backend)
	return s, nil
}
