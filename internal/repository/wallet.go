package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetBalance returns the current wallet balance of a user.
func (q *Queries) GetBalance(ctx context.Context, userID string) (money.Amount, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return money.FromCents(balance), nil
}

// Increment adds amount to the wallet and records the entry.
func (q *Queries) Increment(ctx context.Context, userID string, amount money.Amount, entry domain.Entry) (money.Amount, error) {
	if !amount.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}

	query := `
		UPDATE wallets SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING balance
	`
	var balance int64
	if err := q.db.QueryRow(ctx, query, userID, amount.Cents()).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment balance: %w", err)
	}

	newBalance := money.FromCents(balance)
	if err := q.insertEntry(ctx, userID, amount, newBalance, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Decrement subtracts amount from the wallet. The balance condition is part of
// the UPDATE so a concurrent debit cannot slip between check and write.
func (q *Queries) Decrement(ctx context.Context, userID string, amount money.Amount, entry domain.Entry) (money.Amount, error) {
	if !amount.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}

	query := `
		UPDATE wallets SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`
	var balance int64
	err := q.db.QueryRow(ctx, query, userID, amount.Cents()).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the wallet is missing or the balance is too low.
			if _, getErr := q.GetBalance(ctx, userID); getErr != nil {
				return 0, getErr
			}
			return 0, domain.ErrInsufficientFunds
		}
		return 0, fmt.Errorf("failed to decrement balance: %w", err)
	}

	newBalance := money.FromCents(balance)
	if err := q.insertEntry(ctx, userID, -amount, newBalance, entry); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListEntries returns the most recent wallet entries of a user.
func (q *Queries) ListEntries(ctx context.Context, userID string, limit int) ([]*domain.WalletEntry, error) {
	query := `
		SELECT id, user_id, kind, amount, balance_after, reference, created_at
		FROM wallet_entries WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := q.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallet entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.WalletEntry{}
	for rows.Next() {
		var e domain.WalletEntry
		var kind string
		var amount, after int64
		if err := rows.Scan(&e.ID, &e.UserID, &kind, &amount, &after, &e.Reference, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet entry: %w", err)
		}
		e.Kind = domain.EntryKind(kind)
		e.Amount = money.FromCents(amount)
		e.BalanceAfter = money.FromCents(after)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (q *Queries) insertEntry(ctx context.Context, userID string, amount, balanceAfter money.Amount, entry domain.Entry) error {
	query := `
		INSERT INTO wallet_entries (id, user_id, kind, amount, balance_after, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.db.Exec(ctx, query,
		uuid.New().String(), userID, string(entry.Kind), amount.Cents(), balanceAfter.Cents(), entry.Reference,
	)
	if err != nil {
		return fmt.Errorf("failed to record wallet entry: %w", err)
	}
	return nil
}
