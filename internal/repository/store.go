package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store runs atomic units of work. Every mutation the engine performs goes
// through WithTx: either all effects of fn commit or none do.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is the set of operations available inside one atomic unit.
type Tx interface {
	UserStore
	WalletStore
	TierStore
	SubscriptionStore
}

// UserStore holds the profile rows. Find methods return nil, nil on a miss.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	// LockUser takes the row lock used to serialize a creator's tier edits.
	LockUser(ctx context.Context, id string) error
	UpdateProfile(ctx context.Context, id, displayName, bio string) (*domain.User, error)
	Stats(ctx context.Context, now time.Time) (*Stats, error)
}

// WalletStore is the ledger. Amounts must be positive.
type WalletStore interface {
	GetBalance(ctx context.Context, userID string) (money.Amount, error)
	Increment(ctx context.Context, userID string, amount money.Amount, entry domain.Entry) (money.Amount, error)
	// Decrement fails with domain.ErrInsufficientFunds when the balance would
	// go negative; the check and the write are a single step.
	Decrement(ctx context.Context, userID string, amount money.Amount, entry domain.Entry) (money.Amount, error)
	ListEntries(ctx context.Context, userID string, limit int) ([]*domain.WalletEntry, error)
}

// TierStore is the tier catalog.
type TierStore interface {
	GetTier(ctx context.Context, id string) (*domain.Tier, error)
	// GetTierForShare reads a tier and holds a share lock on it, so the tier
	// cannot be deleted until the unit ends. A tier deleted concurrently reads
	// as nil.
	GetTierForShare(ctx context.Context, id string) (*domain.Tier, error)
	// LockTiers takes exclusive row locks on the given tiers. Callers lock
	// before counting subscriptions on tiers they are about to delete.
	LockTiers(ctx context.Context, ids []string) error
	ListTiersByCreator(ctx context.Context, creatorID string) ([]*domain.Tier, error)
	// UpsertTier updates t in place when t.ID exists and belongs to creatorID,
	// otherwise inserts it under a fresh id.
	UpsertTier(ctx context.Context, creatorID string, t *domain.Tier) (*domain.Tier, error)
	DeleteTiersExcept(ctx context.Context, creatorID string, keep []string) (int64, error)
	DeleteTier(ctx context.Context, creatorID, tierID string) error
	CountLiveSubscriptions(ctx context.Context, tierIDs []string, now time.Time) (int, error)
}

// SubscriptionStore holds subscriber to tier rows.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	// FindSubscriptionByPair locks the row for the rest of the unit.
	FindSubscriptionByPair(ctx context.Context, subscriberID, tierID string) (*domain.Subscription, error)
	ListSubscriptionsBySubscriber(ctx context.Context, subscriberID string) ([]*domain.Subscription, error)
	CreateSubscription(ctx context.Context, s *domain.Subscription) error
	// ExtendSubscription sets a new expiry, re-enables renewal and clears the
	// lapse marker.
	ExtendSubscription(ctx context.Context, id string, expiresAt time.Time) error
	AdvanceExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DisableAutoRenew(ctx context.Context, id string, lapsedAt *time.Time) error
	SetAutoRenew(ctx context.Context, id string, enabled bool) error
	DeleteSubscription(ctx context.Context, id string) error
	// FindExpiring lists unresolved subscriptions with expiresAt <= now.
	FindExpiring(ctx context.Context, now time.Time) ([]*domain.ExpiringSubscription, error)
	// LockExpiring re-reads one candidate under a row lock. It returns nil,
	// nil when the row was resolved already or another sweeper holds it.
	LockExpiring(ctx context.Context, id string, now time.Time) (*domain.ExpiringSubscription, error)
}

// Stats are the admin dashboard counters.
type Stats struct {
	Users               int          `json:"users"`
	Tiers               int          `json:"tiers"`
	ActiveSubscriptions int          `json:"activeSubscriptions"`
	TotalBalance        money.Amount `json:"totalBalance"`
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries implements Tx on top of a pgx connection or transaction.
type Queries struct {
	db DBTX
}

// NewQueries wraps db.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

var (
	_ Tx    = (*Queries)(nil)
	_ Store = (*PostgresStore)(nil)
)

const maxTxAttempts = 3

// Pool is the part of *pgxpool.Pool the store uses.
type Pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithTx runs fn in a read-committed transaction. Serialization failures,
// deadlocks and a lost race on the subscription pair are retried.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(NewQueries(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Ping checks the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func isRetryable(err error) bool {
	if errors.Is(err, domain.ErrAlreadySubscribed) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
