package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/jackc/pgx/v5"
)

const subscriptionSelect = `
	SELECT s.id, s.subscriber_id, s.tier_id, t.creator_id, s.expires_at, s.auto_renew, s.lapsed_at, s.created_at, s.updated_at
	FROM subscriptions s JOIN tiers t ON t.id = s.tier_id
`

const expiringSelect = `
	SELECT s.id, s.subscriber_id, s.tier_id, t.creator_id, s.expires_at, s.auto_renew, s.lapsed_at, s.created_at, s.updated_at,
		t.price, t.duration_in_months, w.balance
	FROM subscriptions s
	JOIN tiers t ON t.id = s.tier_id
	JOIN wallets w ON w.user_id = s.subscriber_id
`

// GetSubscription returns a subscription by ID.
func (q *Queries) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := scanSubscription(q.db.QueryRow(ctx, subscriptionSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// FindSubscriptionByPair returns the subscription of subscriberID on tierID,
// locking it.
func (q *Queries) FindSubscriptionByPair(ctx context.Context, subscriberID, tierID string) (*domain.Subscription, error) {
	query := subscriptionSelect + ` WHERE s.subscriber_id = $1 AND s.tier_id = $2 FOR UPDATE OF s`
	sub, err := scanSubscription(q.db.QueryRow(ctx, query, subscriberID, tierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

// ListSubscriptionsBySubscriber returns every subscription a user holds.
func (q *Queries) ListSubscriptionsBySubscriber(ctx context.Context, subscriberID string) ([]*domain.Subscription, error) {
	rows, err := q.db.Query(ctx, subscriptionSelect+` WHERE s.subscriber_id = $1 ORDER BY s.expires_at DESC, s.id`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateSubscription inserts a new subscription row.
func (q *Queries) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, subscriber_id, tier_id, expires_at, auto_renew, lapsed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.db.Exec(ctx, query,
		sub.ID, sub.SubscriberID, sub.TierID, sub.ExpiresAt, sub.AutoRenew, sub.LapsedAt,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadySubscribed
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// ExtendSubscription moves the expiry and reactivates renewal.
func (q *Queries) ExtendSubscription(ctx context.Context, id string, expiresAt time.Time) error {
	return q.execOne(ctx, "extend subscription",
		`UPDATE subscriptions SET expires_at = $2, auto_renew = TRUE, lapsed_at = NULL, updated_at = NOW() WHERE id = $1`,
		id, expiresAt)
}

// AdvanceExpiry moves the expiry only.
func (q *Queries) AdvanceExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	return q.execOne(ctx, "advance expiry",
		`UPDATE subscriptions SET expires_at = $2, updated_at = NOW() WHERE id = $1`,
		id, expiresAt)
}

// DisableAutoRenew turns renewal off. A non-nil lapsedAt marks the row as
// lapsed so later sweeps leave it alone.
func (q *Queries) DisableAutoRenew(ctx context.Context, id string, lapsedAt *time.Time) error {
	return q.execOne(ctx, "disable auto-renew",
		`UPDATE subscriptions SET auto_renew = FALSE, lapsed_at = $2, updated_at = NOW() WHERE id = $1`,
		id, lapsedAt)
}

// SetAutoRenew is the subscriber-facing renewal toggle.
func (q *Queries) SetAutoRenew(ctx context.Context, id string, enabled bool) error {
	return q.execOne(ctx, "set auto-renew",
		`UPDATE subscriptions SET auto_renew = $2, updated_at = NOW() WHERE id = $1`,
		id, enabled)
}

// DeleteSubscription removes a subscription.
func (q *Queries) DeleteSubscription(ctx context.Context, id string) error {
	return q.execOne(ctx, "delete subscription", `DELETE FROM subscriptions WHERE id = $1`, id)
}

// FindExpiring returns unresolved subscriptions that expired at or before now.
func (q *Queries) FindExpiring(ctx context.Context, now time.Time) ([]*domain.ExpiringSubscription, error) {
	query := expiringSelect + ` WHERE s.expires_at <= $1 AND s.lapsed_at IS NULL ORDER BY s.expires_at, s.id`
	rows, err := q.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*domain.ExpiringSubscription{}
	for rows.Next() {
		sub, err := scanExpiring(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expiring subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// LockExpiring re-checks one candidate under a row lock, skipping rows another
// transaction already holds.
func (q *Queries) LockExpiring(ctx context.Context, id string, now time.Time) (*domain.ExpiringSubscription, error) {
	query := expiringSelect + ` WHERE s.id = $1 AND s.expires_at <= $2 AND s.lapsed_at IS NULL FOR UPDATE OF s SKIP LOCKED`
	sub, err := scanExpiring(q.db.QueryRow(ctx, query, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	return sub, nil
}

func (q *Queries) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID, &s.SubscriberID, &s.TierID, &s.CreatorID, &s.ExpiresAt, &s.AutoRenew,
		&s.LapsedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanExpiring(row pgx.Row) (*domain.ExpiringSubscription, error) {
	var e domain.ExpiringSubscription
	var price, balance int64
	err := row.Scan(
		&e.ID, &e.SubscriberID, &e.TierID, &e.CreatorID, &e.ExpiresAt, &e.AutoRenew,
		&e.LapsedAt, &e.CreatedAt, &e.UpdatedAt,
		&price, &e.DurationInMonths, &balance,
	)
	if err != nil {
		return nil, err
	}
	e.Price = money.FromCents(price)
	e.SubscriberBalance = money.FromCents(balance)
	return &e, nil
}
