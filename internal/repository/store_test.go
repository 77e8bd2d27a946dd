package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	readCommitted = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	deleteSubSQL  = regexp.QuoteMeta(`DELETE FROM subscriptions WHERE id = $1`)
	insertSubSQL  = regexp.QuoteMeta(`INSERT INTO subscriptions`)
)

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func deleteSub(ctx context.Context, attempts *int) func(tx Tx) error {
	return func(tx Tx) error {
		*attempts++
		return tx.DeleteSubscription(ctx, "s1")
	}
}

func TestWithTx_Commits(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(deleteSubSQL).WithArgs("s1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	attempts := 0
	require.NoError(t, NewPostgresStore(mock).WithTx(ctx, deleteSub(ctx, &attempts)))
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectRollback()

	attempts := 0
	err := NewPostgresStore(mock).WithTx(ctx, func(tx Tx) error {
		attempts++
		return domain.ErrInsufficientFunds
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, 1, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RetriesSerializationFailure(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(deleteSubSQL).WithArgs("s1").WillReturnError(&pgconn.PgError{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(deleteSubSQL).WithArgs("s1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	attempts := 0
	require.NoError(t, NewPostgresStore(mock).WithTx(ctx, deleteSub(ctx, &attempts)))
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RetriesLostSubscriptionRace(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(insertSubSQL).WithArgs(anyArgs(8)...).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()
	mock.ExpectBeginTx(readCommitted)
	mock.ExpectExec(insertSubSQL).WithArgs(anyArgs(8)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	attempts := 0
	err := NewPostgresStore(mock).WithTx(ctx, func(tx Tx) error {
		attempts++
		return tx.CreateSubscription(ctx, &domain.Subscription{
			ID: "s1", SubscriberID: "fan", TierID: "t1", ExpiresAt: now, AutoRenew: true, CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBeginTx(readCommitted)
		mock.ExpectExec(deleteSubSQL).WithArgs("s1").WillReturnError(&pgconn.PgError{Code: "40P01"})
		mock.ExpectRollback()
	}

	attempts := 0
	err := NewPostgresStore(mock).WithTx(ctx, deleteSub(ctx, &attempts))
	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "40P01", pgErr.Code)
	assert.Equal(t, maxTxAttempts, attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginFails(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectBeginTx(readCommitted).WillReturnError(errors.New("pool exhausted"))

	err := NewPostgresStore(mock).WithTx(context.Background(), func(Tx) error {
		t.Fatal("fn must not run without a transaction")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectPing()

	assert.NoError(t, NewPostgresStore(mock).Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
