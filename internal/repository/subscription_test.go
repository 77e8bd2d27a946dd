package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var expiringCols = []string{
	"id", "subscriber_id", "tier_id", "creator_id", "expires_at", "auto_renew", "lapsed_at", "created_at", "updated_at",
	"price", "duration_in_months", "balance",
}

func TestLockExpiring_SkipsLockedOrResolvedRows(t *testing.T) {
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE s.id = $1 AND s.expires_at <= $2 AND s.lapsed_at IS NULL FOR UPDATE OF s SKIP LOCKED`)).
		WithArgs("s1", now).
		WillReturnRows(pgxmock.NewRows(expiringCols))

	sub, err := NewQueries(mock).LockExpiring(context.Background(), "s1", now)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSubscriptionByPair_LocksRow(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE s.subscriber_id = $1 AND s.tier_id = $2 FOR UPDATE OF s`)).
		WithArgs("fan", "t1").
		WillReturnRows(pgxmock.NewRows(expiringCols[:9]))

	sub, err := NewQueries(mock).FindSubscriptionByPair(context.Background(), "fan", "t1")
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubscription_DuplicatePair(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO subscriptions`)).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := NewQueries(mock).CreateSubscription(context.Background(), &domain.Subscription{
		ID: "s1", SubscriberID: "fan", TierID: "t1", ExpiresAt: now, AutoRenew: true, CreatedAt: now, UpdatedAt: now,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvanceExpiry_MissingRow(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE subscriptions SET expires_at = $2, updated_at = NOW() WHERE id = $1`)).
		WithArgs("gone", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewQueries(mock).AdvanceExpiry(context.Background(), "gone", at)
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
