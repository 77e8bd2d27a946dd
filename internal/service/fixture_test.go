package service

import (
	"context"
	"testing"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/creatorhub/backend/internal/repository/memory"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/creatorhub/backend/pkg/payment"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	gateway *payment.MockGateway
	billing *BillingService
	tiers   *TierService
	users   *UserService
	now     time.Time
}

func newFixture(t *testing.T, cfg BillingConfig) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	f := &fixture{
		store:   memory.New(),
		gateway: payment.NewMockGateway(),
		now:     baseTime,
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)

	if cfg.MaxTopUp == 0 {
		cfg.MaxTopUp = money.MustParse("500.00")
	}
	f.billing = NewBillingService(f.store, f.gateway, cfg, log)
	f.billing.SetClock(clock)
	f.tiers = NewTierService(f.store, log)
	f.tiers.SetClock(clock)
	f.users = NewUserService(f.store, log)
	f.users.SetClock(clock)
	return f
}

func (f *fixture) user(t *testing.T, name string, balance string) domain.Identity {
	t.Helper()
	admin := domain.Identity{UserID: "root", Role: domain.RoleAdmin}
	p, err := f.users.CreateUser(context.Background(), admin, &domain.CreateUserRequest{
		Username:       name,
		DisplayName:    name,
		InitialBalance: money.MustParse(balance),
	})
	require.NoError(t, err)
	return domain.Identity{UserID: p.ID, Role: domain.RoleUser}
}

func (f *fixture) tier(t *testing.T, creator domain.Identity, price string, months int) *domain.Tier {
	t.Helper()
	var tier *domain.Tier
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		tier, err = tx.UpsertTier(context.Background(), creator.UserID, &domain.Tier{
			Name:             "Tier " + price,
			Price:            money.MustParse(price),
			DurationInMonths: months,
		})
		return err
	})
	require.NoError(t, err)
	return tier
}

func (f *fixture) balance(t *testing.T, id domain.Identity) money.Amount {
	t.Helper()
	var b money.Amount
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		b, err = tx.GetBalance(context.Background(), id.UserID)
		return err
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) subscription(t *testing.T, id string) *domain.Subscription {
	t.Helper()
	var sub *domain.Subscription
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		sub, err = tx.GetSubscription(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) totalBalance(t *testing.T) money.Amount {
	t.Helper()
	var total money.Amount
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		stats, err := tx.Stats(context.Background(), f.now)
		if err != nil {
			return err
		}
		total = stats.TotalBalance
		return nil
	})
	require.NoError(t, err)
	return total
}

// expire moves a subscription's expiry to at.
func (f *fixture) expire(t *testing.T, subID string, at time.Time) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.AdvanceExpiry(context.Background(), subID, at)
	})
	require.NoError(t, err)
}
