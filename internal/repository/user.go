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

const userColumns = `id, username, display_name, bio, role, created_at, updated_at`

// CreateUser inserts a new user together with an empty wallet.
func (q *Queries) CreateUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, username, display_name, bio, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.db.Exec(ctx, query,
		u.ID, u.Username, u.DisplayName, u.Bio, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := q.db.Exec(ctx, `INSERT INTO wallets (user_id, balance) VALUES ($1, 0)`, u.ID); err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (q *Queries) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// ListUsers returns all users ordered by creation date.
func (q *Queries) ListUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LockUser locks the user row until the transaction ends.
func (q *Queries) LockUser(ctx context.Context, id string) error {
	var locked string
	err := q.db.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// UpdateProfile sets the display name and bio.
func (q *Queries) UpdateProfile(ctx context.Context, id, displayName, bio string) (*domain.User, error) {
	query := `
		UPDATE users SET display_name = $2, bio = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	u, err := scanUser(q.db.QueryRow(ctx, query, id, displayName, bio))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return u, nil
}

// Stats counts users, tiers, active subscriptions and the money held in wallets.
func (q *Queries) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM tiers),
			(SELECT COUNT(*) FROM subscriptions WHERE expires_at > $1),
			(SELECT COALESCE(SUM(balance), 0)::BIGINT FROM wallets)
	`
	var s Stats
	var total int64
	if err := q.db.QueryRow(ctx, query, now).Scan(&s.Users, &s.Tiers, &s.ActiveSubscriptions, &total); err != nil {
		return nil, fmt.Errorf("failed to count stats: %w", err)
	}
	s.TotalBalance = money.FromCents(total)
	return &s, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Bio, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
