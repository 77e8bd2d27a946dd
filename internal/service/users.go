package service

import (
	"context"
	"strings"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// UserService seeds users and reports platform totals (admin only).
type UserService struct {
	store    repository.Store
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(store repository.Store, log *zap.Logger) *UserService {
	return &UserService{
		store:    store,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the time source for row timestamps.
func (s *UserService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateUser creates a user with an empty wallet, optionally funded with an
// initial balance in the same transaction.
func (s *UserService) CreateUser(ctx context.Context, id domain.Identity, req *domain.CreateUserRequest) (*domain.ProfileResponse, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}

	req.Username = strings.TrimSpace(req.Username)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.Validation(validationMessage(err))
	}

	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}

	now := s.now()
	user := &domain.User{
		ID:          domain.NewUserID(),
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	balance := req.InitialBalance
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if !req.InitialBalance.IsPositive() {
			return nil
		}
		var err error
		balance, err = tx.Increment(ctx, user.ID, req.InitialBalance, domain.Entry{Kind: domain.EntryTopUp, Reference: "initial"})
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to create user")
	}

	s.log.Info("user created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return &domain.ProfileResponse{User: *user, Tiers: []*domain.Tier{}, Balance: &balance}, nil
}

// ListUsers returns all users, newest first.
func (s *UserService) ListUsers(ctx context.Context, id domain.Identity) ([]*domain.User, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	var users []*domain.User
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		users, err = tx.ListUsers(ctx)
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to list users")
	}
	return users, nil
}

// Stats returns platform-wide counters.
func (s *UserService) Stats(ctx context.Context, id domain.Identity) (*repository.Stats, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	var stats *repository.Stats
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		stats, err = tx.Stats(ctx, s.now())
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to load stats")
	}
	return stats, nil
}

func requireAdmin(id domain.Identity) error {
	if id.IsZero() {
		return domain.Unauthorized("authentication required")
	}
	if !id.IsAdmin() {
		return domain.Forbidden("admin access required")
	}
	return nil
}
