package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tierColumns = `id, creator_id, name, description, price, color, duration_in_months, created_at, updated_at`

// GetTier returns a tier by ID.
func (q *Queries) GetTier(ctx context.Context, id string) (*domain.Tier, error) {
	t, err := scanTier(q.db.QueryRow(ctx, `SELECT `+tierColumns+` FROM tiers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tier: %w", err)
	}
	return t, nil
}

// GetTierForShare returns a tier by ID under a FOR SHARE lock.
func (q *Queries) GetTierForShare(ctx context.Context, id string) (*domain.Tier, error) {
	t, err := scanTier(q.db.QueryRow(ctx, `SELECT `+tierColumns+` FROM tiers WHERE id = $1 FOR SHARE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find tier: %w", err)
	}
	return t, nil
}

// LockTiers locks the given tier rows FOR UPDATE. A subscribe holding FOR
// SHARE on one of them finishes first, so a following count sees its row.
func (q *Queries) LockTiers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := q.db.Exec(ctx, `SELECT id FROM tiers WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids); err != nil {
		return fmt.Errorf("failed to lock tiers: %w", err)
	}
	return nil
}

// ListTiersByCreator returns a creator's tiers, cheapest first.
func (q *Queries) ListTiersByCreator(ctx context.Context, creatorID string) ([]*domain.Tier, error) {
	query := `SELECT ` + tierColumns + ` FROM tiers WHERE creator_id = $1 ORDER BY price, created_at, id`
	rows, err := q.db.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	tiers := []*domain.Tier{}
	for rows.Next() {
		t, err := scanTier(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tier row: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

// UpsertTier updates an owned tier in place or inserts a new one.
func (q *Queries) UpsertTier(ctx context.Context, creatorID string, t *domain.Tier) (*domain.Tier, error) {
	if t.ID != "" {
		query := `
			UPDATE tiers
			SET name = $3, description = $4, price = $5, color = $6, duration_in_months = $7, updated_at = NOW()
			WHERE id = $1 AND creator_id = $2
			RETURNING ` + tierColumns
		updated, err := scanTier(q.db.QueryRow(ctx, query,
			t.ID, creatorID, t.Name, t.Description, t.Price.Cents(), t.Color, t.DurationInMonths,
		))
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to update tier: %w", err)
		}
	}

	query := `
		INSERT INTO tiers (id, creator_id, name, description, price, color, duration_in_months)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + tierColumns
	created, err := scanTier(q.db.QueryRow(ctx, query,
		uuid.New().String(), creatorID, t.Name, t.Description, t.Price.Cents(), t.Color, t.DurationInMonths,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create tier: %w", err)
	}
	return created, nil
}

// DeleteTiersExcept removes every tier of creatorID whose id is not in keep.
func (q *Queries) DeleteTiersExcept(ctx context.Context, creatorID string, keep []string) (int64, error) {
	if keep == nil {
		keep = []string{}
	}
	tag, err := q.db.Exec(ctx,
		`DELETE FROM tiers WHERE creator_id = $1 AND NOT (id = ANY($2))`,
		creatorID, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tiers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteTier removes one tier owned by creatorID.
func (q *Queries) DeleteTier(ctx context.Context, creatorID, tierID string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM tiers WHERE id = $1 AND creator_id = $2`, tierID, creatorID)
	if err != nil {
		return fmt.Errorf("failed to delete tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTierNotFound
	}
	return nil
}

// CountLiveSubscriptions counts unexpired subscriptions on the given tiers.
func (q *Queries) CountLiveSubscriptions(ctx context.Context, tierIDs []string, now time.Time) (int, error) {
	if len(tierIDs) == 0 {
		return 0, nil
	}
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE tier_id = ANY($1) AND expires_at > $2`,
		tierIDs, now,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return n, nil
}

func scanTier(row pgx.Row) (*domain.Tier, error) {
	var t domain.Tier
	var price int64
	err := row.Scan(
		&t.ID, &t.CreatorID, &t.Name, &t.Description, &price, &t.Color,
		&t.DurationInMonths, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Price = money.FromCents(price)
	return &t, nil
}
