// Package store is the canonical store adapter (C1) plus the job queue
// RPCs (C4) layered directly on top of it: a pgx connection pool and
// hand-written SQL, since no ORM codegen step is available to this
// build. Migrations are embedded and applied via golang-migrate.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutordex/aggregator/pkg/config"
)

// Store wraps a pgx pool and exposes the canonical-store and job-queue
// RPCs as methods. All SQL lives in the files beside this one, grouped by
// the entity they operate on (jobs.go, assignments.go, duplicates.go,
// clicks.go).
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database and verifies it is reachable. It does not
// run migrations; call Migrate separately so callers can choose when
// schema changes happen relative to process startup.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Healthy reports whether the pool can currently reach the database.
func (s *Store) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Stats exposes pgxpool's runtime stats for the metrics package.
func (s *Store) Stats() *pgxpool.Stat {
	return s.pool.Stat()
}
