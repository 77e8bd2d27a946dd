package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TierService manages creator profiles and their tier catalogs.
type TierService struct {
	store    repository.Store
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewTierService creates a new TierService.
func NewTierService(store repository.Store, log *zap.Logger) *TierService {
	return &TierService{
		store:    store,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the time source used to decide which subscriptions are live.
func (s *TierService) SetClock(now func() time.Time) {
	s.now = now
}

// UpdateCreatorTiers replaces the caller's profile fields and tier set. Tiers
// whose id is kept are updated in place, tiers without an id are created and
// every other tier of the creator is removed. Nothing is written unless the
// whole request is valid.
func (s *TierService) UpdateCreatorTiers(ctx context.Context, id domain.Identity, req *domain.UpdateProfileRequest) (_ *domain.ProfileResponse, err error) {
	ctx, span := tracer.Start(ctx, "tiers.UpdateCreatorTiers", trace.WithAttributes(
		attribute.String("user.id", id.UserID),
		attribute.Int("tiers.count", len(req.Tiers)),
	))
	defer func() { endSpan(span, err) }()

	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}

	normalizeProfile(req)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.Validation(validationMessage(err))
	}
	seen := make(map[string]bool, len(req.Tiers))
	for _, t := range req.Tiers {
		if t.ID == "" {
			continue
		}
		if seen[t.ID] {
			return nil, domain.Validation("duplicate tier id " + t.ID)
		}
		seen[t.ID] = true
	}

	now := s.now()
	var resp *domain.ProfileResponse
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.LockUser(ctx, id.UserID); err != nil {
			return err
		}

		current, err := tx.ListTiersByCreator(ctx, id.UserID)
		if err != nil {
			return err
		}
		owned := make(map[string]bool, len(current))
		for _, t := range current {
			owned[t.ID] = true
		}

		var keep, removed []string
		for _, t := range current {
			if seen[t.ID] {
				keep = append(keep, t.ID)
			} else {
				removed = append(removed, t.ID)
			}
		}

		if err := tx.LockTiers(ctx, removed); err != nil {
			return err
		}
		live, err := tx.CountLiveSubscriptions(ctx, removed, now)
		if err != nil {
			return err
		}
		if live > 0 {
			return domain.Conflict(domain.ErrTierInUse, "cannot remove a tier that has active subscribers")
		}
		if _, err := tx.DeleteTiersExcept(ctx, id.UserID, keep); err != nil {
			return err
		}

		for _, in := range req.Tiers {
			tier := &domain.Tier{
				Name:             in.Name,
				Description:      in.Description,
				Price:            in.Price,
				Color:            in.Color,
				DurationInMonths: in.DurationInMonths,
			}
			if owned[in.ID] {
				tier.ID = in.ID
			}
			if _, err := tx.UpsertTier(ctx, id.UserID, tier); err != nil {
				return err
			}
		}

		user, err := tx.UpdateProfile(ctx, id.UserID, req.DisplayName, req.Bio)
		if err != nil {
			return err
		}
		tiers, err := tx.ListTiersByCreator(ctx, id.UserID)
		if err != nil {
			return err
		}
		resp = &domain.ProfileResponse{User: *user, Tiers: tiers}
		return nil
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to update profile")
	}

	s.log.Info("creator tiers updated",
		zap.String("user_id", id.UserID),
		zap.Int("tiers", len(resp.Tiers)),
	)
	return resp, nil
}

// DeleteTier removes one of the caller's tiers. A tier with live
// subscriptions cannot be deleted.
func (s *TierService) DeleteTier(ctx context.Context, id domain.Identity, tierID string) error {
	if id.IsZero() {
		return domain.Unauthorized("authentication required")
	}

	now := s.now()
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		tier, err := tx.GetTier(ctx, tierID)
		if err != nil {
			return err
		}
		if tier == nil || tier.CreatorID != id.UserID {
			return domain.ErrTierNotFound
		}
		if err := tx.LockTiers(ctx, []string{tierID}); err != nil {
			return err
		}
		live, err := tx.CountLiveSubscriptions(ctx, []string{tierID}, now)
		if err != nil {
			return err
		}
		if live > 0 {
			return domain.ErrTierInUse
		}
		return tx.DeleteTier(ctx, id.UserID, tierID)
	})
	if err != nil {
		return domain.FromStoreError(err, "failed to delete tier")
	}
	return nil
}

// ListTiers returns a creator's public tier list.
func (s *TierService) ListTiers(ctx context.Context, creatorID string) ([]*domain.Tier, error) {
	var tiers []*domain.Tier
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUser(ctx, creatorID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		tiers, err = tx.ListTiersByCreator(ctx, creatorID)
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to list tiers")
	}
	return tiers, nil
}

// GetProfile returns the caller's profile, tiers and wallet balance.
func (s *TierService) GetProfile(ctx context.Context, id domain.Identity) (*domain.ProfileResponse, error) {
	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}

	var resp *domain.ProfileResponse
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUser(ctx, id.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		tiers, err := tx.ListTiersByCreator(ctx, id.UserID)
		if err != nil {
			return err
		}
		balance, err := tx.GetBalance(ctx, id.UserID)
		if err != nil {
			return err
		}
		resp = &domain.ProfileResponse{User: *user, Tiers: tiers, Balance: &balance}
		return nil
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to load profile")
	}
	return resp, nil
}

func normalizeProfile(req *domain.UpdateProfileRequest) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Bio = strings.TrimSpace(req.Bio)
	for i := range req.Tiers {
		t := &req.Tiers[i]
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		t.Description = strings.TrimSpace(t.Description)
		t.Color = strings.TrimSpace(t.Color)
		if t.DurationInMonths == 0 {
			t.DurationInMonths = domain.DefaultTierDuration
		}
	}
}

// validationMessage renders the first failing field as "field: rule".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		if fe.Param() != "" {
			return fmt.Sprintf("%s: failed %s=%s", field, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
	return err.Error()
}
