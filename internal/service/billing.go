package service

import (
	"context"
	"errors"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/metrics"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/creatorhub/backend/pkg/payment"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/creatorhub/backend/internal/service")

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 200
	defaultSweepWorkers = 4
)

// BillingConfig tunes the billing engine.
type BillingConfig struct {
	RenewalMode      domain.RenewalMode
	MaxTopUp         money.Amount
	SweepConcurrency int
}

// BillingService moves money between wallets: purchases, renewals and
// top-ups. Every mutation runs inside one store transaction.
type BillingService struct {
	store    repository.Store
	gateway  payment.Gateway
	validate *validator.Validate
	log      *zap.Logger
	cfg      BillingConfig
	now      func() time.Time
}

// NewBillingService creates a new BillingService.
func NewBillingService(store repository.Store, gateway payment.Gateway, cfg BillingConfig, log *zap.Logger) *BillingService {
	if cfg.RenewalMode == "" {
		cfg.RenewalMode = domain.RenewalFixed
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = defaultSweepWorkers
	}
	return &BillingService{
		store:    store,
		gateway:  gateway,
		validate: validator.New(),
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock replaces the time source used for expiry arithmetic.
func (s *BillingService) SetClock(now func() time.Time) {
	s.now = now
}

// Subscribe charges the caller the tier price, credits the creator and
// creates or extends the subscription, all in one transaction.
func (s *BillingService) Subscribe(ctx context.Context, id domain.Identity, tierID string) (result *domain.SubscribeResult, err error) {
	ctx, span := tracer.Start(ctx, "billing.Subscribe", trace.WithAttributes(
		attribute.String("tier.id", tierID),
		attribute.String("user.id", id.UserID),
	))
	defer func() {
		metrics.SubscribeTotal.WithLabelValues(subscribeLabel(result, err)).Inc()
		endSpan(span, err)
	}()

	now := s.now()
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		tier, err := tx.GetTierForShare(ctx, tierID)
		if err != nil {
			return err
		}
		if tier == nil {
			return domain.ErrNotFound(domain.ErrTierNotFound, "tier not found")
		}
		if id.IsZero() {
			return domain.Unauthorized("authentication required")
		}
		if tier.CreatorID == id.UserID {
			return domain.Validation("cannot subscribe to your own tier")
		}

		balance, err := tx.GetBalance(ctx, id.UserID)
		if err != nil {
			return err
		}
		if balance < tier.Price {
			return domain.InsufficientFunds("insufficient balance")
		}

		existing, err := tx.FindSubscriptionByPair(ctx, id.UserID, tier.ID)
		if err != nil {
			return err
		}
		subID := uuid.New().String()
		if existing != nil {
			subID = existing.ID
		}

		newBalance, err := tx.Decrement(ctx, id.UserID, tier.Price, domain.Entry{Kind: domain.EntrySubscriptionCharge, Reference: subID})
		if err != nil {
			return err
		}
		if _, err := tx.Increment(ctx, tier.CreatorID, tier.Price, domain.Entry{Kind: domain.EntrySubscriptionPayout, Reference: subID}); err != nil {
			return err
		}

		if existing != nil {
			base := existing.ExpiresAt
			if base.Before(now) {
				base = now
			}
			expiresAt := base.AddDate(0, tier.DurationInMonths, 0)
			if err := tx.ExtendSubscription(ctx, existing.ID, expiresAt); err != nil {
				return err
			}
			result = &domain.SubscribeResult{SubscriptionID: subID, NewBalance: newBalance, ExpiresAt: expiresAt, Extended: true}
			return nil
		}

		sub := &domain.Subscription{
			ID:           subID,
			SubscriberID: id.UserID,
			TierID:       tier.ID,
			CreatorID:    tier.CreatorID,
			ExpiresAt:    now.AddDate(0, tier.DurationInMonths, 0),
			AutoRenew:    true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		result = &domain.SubscribeResult{SubscriptionID: subID, NewBalance: newBalance, ExpiresAt: sub.ExpiresAt}
		return nil
	})
	if err != nil {
		result = nil
		return nil, domain.FromStoreError(err, "failed to subscribe")
	}

	s.log.Info("subscription purchased",
		zap.String("user_id", id.UserID),
		zap.String("tier_id", tierID),
		zap.String("subscription_id", result.SubscriptionID),
		zap.Bool("extended", result.Extended),
	)
	return result, nil
}

// AddBalance charges the top-up gateway and credits the caller's wallet.
func (s *BillingService) AddBalance(ctx context.Context, id domain.Identity, raw []byte) (_ *domain.BalanceResponse, err error) {
	ctx, span := tracer.Start(ctx, "billing.AddBalance", trace.WithAttributes(attribute.String("user.id", id.UserID)))
	defer func() { endSpan(span, err) }()

	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}

	amount, err := money.ParseJSON(raw)
	if err != nil {
		return nil, domain.InvalidAmount("amount must be a number with at most two decimals")
	}
	if !amount.IsPositive() {
		return nil, domain.InvalidAmount("amount must be positive")
	}
	if s.cfg.MaxTopUp > 0 && amount > s.cfg.MaxTopUp {
		return nil, domain.InvalidAmount("amount exceeds the top-up limit of " + s.cfg.MaxTopUp.String())
	}

	reference, err := s.gateway.Charge(ctx, id.UserID, amount, uuid.New().String())
	if err != nil {
		if errors.Is(err, payment.ErrDeclined) {
			return nil, domain.PaymentDeclined(err)
		}
		return nil, domain.ErrInternal("failed to charge payment method", err)
	}

	var balance money.Amount
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		balance, err = tx.Increment(ctx, id.UserID, amount, domain.Entry{Kind: domain.EntryTopUp, Reference: reference})
		return err
	})
	if err != nil {
		s.log.Error("top-up charged but not credited",
			zap.String("user_id", id.UserID),
			zap.String("reference", reference),
			zap.Stringer("amount", amount),
			zap.Error(err),
		)
		return nil, domain.FromStoreError(err, "failed to add balance")
	}

	metrics.TopUpCents.Add(float64(amount.Cents()))
	return &domain.BalanceResponse{UserID: id.UserID, Balance: balance}, nil
}

// GetWallet returns the caller's balance.
func (s *BillingService) GetWallet(ctx context.Context, id domain.Identity) (*domain.BalanceResponse, error) {
	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}
	var balance money.Amount
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		balance, err = tx.GetBalance(ctx, id.UserID)
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to read balance")
	}
	return &domain.BalanceResponse{UserID: id.UserID, Balance: balance}, nil
}

// ListEntries returns the caller's most recent wallet movements.
func (s *BillingService) ListEntries(ctx context.Context, id domain.Identity, limit int) ([]*domain.WalletEntry, error) {
	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}
	if limit <= 0 {
		limit = defaultEntriesLimit
	}
	if limit > maxEntriesLimit {
		limit = maxEntriesLimit
	}

	var entries []*domain.WalletEntry
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		entries, err = tx.ListEntries(ctx, id.UserID, limit)
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to list wallet entries")
	}
	return entries, nil
}

// ListSubscriptions returns every subscription the caller holds.
func (s *BillingService) ListSubscriptions(ctx context.Context, id domain.Identity) ([]*domain.Subscription, error) {
	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}
	var subs []*domain.Subscription
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		subs, err = tx.ListSubscriptionsBySubscriber(ctx, id.UserID)
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to list subscriptions")
	}
	return subs, nil
}

// SetAutoRenew toggles renewal on one of the caller's subscriptions. A lapsed
// subscription is only revived by purchasing it again.
func (s *BillingService) SetAutoRenew(ctx context.Context, id domain.Identity, subID string, req *domain.SetAutoRenewRequest) (*domain.Subscription, error) {
	if id.IsZero() {
		return nil, domain.Unauthorized("authentication required")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.Validation("autoRenew is required")
	}

	var sub *domain.Subscription
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		sub, err = tx.GetSubscription(ctx, subID)
		if err != nil {
			return err
		}
		if sub == nil || sub.SubscriberID != id.UserID {
			return domain.ErrSubscriptionNotFound
		}
		if *req.AutoRenew && sub.LapsedAt != nil {
			return domain.Validation("subscription has lapsed, purchase it again to reactivate")
		}
		if err := tx.SetAutoRenew(ctx, subID, *req.AutoRenew); err != nil {
			return err
		}
		sub, err = tx.GetSubscription(ctx, subID)
		return err
	})
	if err != nil {
		return nil, domain.FromStoreError(err, "failed to update subscription")
	}
	return sub, nil
}

func subscribeLabel(result *domain.SubscribeResult, err error) string {
	switch {
	case err == nil && result != nil && result.Extended:
		return "extended"
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrTierNotFound):
		return "tier_not_found"
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrUnauthorized):
		return "rejected"
	}
	return "error"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
