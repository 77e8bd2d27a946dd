package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = maxConns
	}
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the schema idempotently. Balances and prices are
// stored in cents.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			username     TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			bio          TEXT NOT NULL DEFAULT '',
			role         TEXT NOT NULL DEFAULT 'user',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wallets (
			user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS wallet_entries (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			kind          TEXT NOT NULL,
			amount        BIGINT NOT NULL,
			balance_after BIGINT NOT NULL,
			reference     TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_wallet_entries_user_id ON wallet_entries(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS tiers (
			id                 TEXT PRIMARY KEY,
			creator_id         TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name               TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			price              BIGINT NOT NULL CHECK (price > 0),
			color              TEXT NOT NULL DEFAULT '',
			duration_in_months INT NOT NULL DEFAULT 1 CHECK (duration_in_months BETWEEN 1 AND 12),
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tiers_creator_id ON tiers(creator_id);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id            TEXT PRIMARY KEY,
			subscriber_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			tier_id       TEXT NOT NULL REFERENCES tiers(id) ON DELETE CASCADE,
			expires_at    TIMESTAMPTZ NOT NULL,
			auto_renew    BOOLEAN NOT NULL DEFAULT TRUE,
			lapsed_at     TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (subscriber_id, tier_id)
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_expiring ON subscriptions(expires_at) WHERE lapsed_at IS NULL;
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
