// Package persistence selects and wires the configured store backend.
package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progress/internal/config"
	"example.com/progress/internal/domain"
	"example.com/progress/internal/persistence/memory"
	"example.com/progress/internal/persistence/postgres"
	"example.com/progress/internal/persistence/redis"
)

// Open builds the store named by cfg.StoreBackend. The postgres backend also
// ensures the schema exists.
func Open(ctx context.Context, cfg config.Config) (domain.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		store, err := redis.New(ctx, redis.Config{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			DialTimeout: cfg.StoreTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		return store, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return postgres.New(pool), nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
