package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"minerva/internal/platform/config"
	platformredis "minerva/internal/platform/redis"
)

// Open builds the store selected by cfg. The returned closer releases the
// backing resources and is never nil.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Store, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		return NewMemory(), io.NopCloser(nil), nil
	case config.StoreBadger:
		s, err := OpenBadger(cfg.Store.Dir,
			WithBadgerPrefix(cfg.Store.Prefix),
			WithSyncWrites(cfg.Store.Sync),
			WithBadgerLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.StoreRedis:
		client, err := platformredis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("redis store selected but redis.url is empty")
		}
		return NewRedis(client.Client, WithRedisPrefix(cfg.Store.Prefix)), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
