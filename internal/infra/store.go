package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cargo-track/cargo_track/internal/config"
	"github.com/cargo-track/cargo_track/internal/docstore"
)

// Backend is the opened document store plus the clients it was built from.
// Cache is set whenever REDIS_URL is configured, whatever the store backend,
// and serves rate limiting and idempotency.
type Backend struct {
	Store docstore.Store
	DB    *pgxpool.Pool
	Cache *redis.Client

	closers []func() error
}

// Open builds the store selected by cfg.StoreBackend. Postgres migrations
// are applied before the store is returned.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backend, error) {
	b := &Backend{}
	fail := func(err error) (*Backend, error) {
		_ = b.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		b.Cache = cache
		b.closers = append(b.closers, cache.Close)
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		b.Store = docstore.NewMemoryStore()
	case config.BackendBadger:
		db, err := NewBadgerDB(cfg.BadgerDir, logger)
		if err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, db.Close)
		b.Store = docstore.NewBadgerStore(db)
	case config.BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		b.closers = append(b.closers, func() error { pool.Close(); return nil })
		b.DB = pool
		if err := Migrate(ctx, pool); err != nil {
			return fail(err)
		}
		b.Store = docstore.NewPostgresStore(pool)
	case config.BackendRedis:
		if b.Cache == nil {
			return fail(fmt.Errorf("redis backend requires REDIS_URL"))
		}
		b.Store = docstore.NewRedisStore(b.Cache, cfg.RedisPrefix)
	default:
		return fail(fmt.Errorf("unknown store backend %q", cfg.StoreBackend))
	}

	if logger != nil {
		logger.Info("document store ready", slog.String("backend", cfg.StoreBackend), slog.Bool("redis", b.Cache != nil))
	}
	return b, nil
}

// Close releases the clients in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
