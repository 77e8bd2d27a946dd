package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/creatorhub/backend/internal/repository/memory"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSweep_RenewsWithFunds(t *testing.T) {
	f := newFixture(t, BillingConfig{})
	ctx := context.Background()
	creator := f.user(t, "creator", "0")
	fan := f.user(t, "fan", "30.00")
	tier := f.tier(t, creator, "15.00", 3)

	res, err := f.billing.Subscribe(ctx, fan, tier.ID)
	require.NoError(t, err)
	require.Equal(t, money.MustParse("15.00"), f.balance(t, fan))

	f.now = res.ExpiresAt.Add(time.Hour)
	report, err := f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.OutcomeRenewed, report.Results[0].Outcome)
	assert.Equal(t, 1, report.Counts[domain.OutcomeRenewed])
	assert.Equal(t, money.Amount(0), f.balance(t, fan))
	assert.Equal(t, money.MustParse("30.00"), f.balance(t, creator))

	sub := f.subscription(t, res.SubscriptionID)
	assert.Equal(t, f.now.Add(30*24*time.Hour), sub.ExpiresAt)
	assert.True(t, sub.AutoRenew)
}

func TestSweep_TierRenewalMode(t *testing.T) {
	f := newFixture(t, BillingConfig{RenewalMode: domain.RenewalTier})
	ctx := context.Background()
	creator := f.user(t, "creator", "0")
	fan := f.user(t, "fan", "30.00")
	tier := f.tier(t, creator, "15.00", 3)

	res, err := f.billing.Subscribe(ctx, fan, tier.ID)
	require.NoError(t, err)

	f.now = res.ExpiresAt
	_, err = f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)

	assert.Equal(t, f.now.AddDate(0, 3, 0), f.subscription(t, res.SubscriptionID).ExpiresAt)
}

func TestSweep_LapsesWithoutFunds(t *testing.T) {
	f := newFixture(t, BillingConfig{})
	ctx := context.Background()
	creator := f.user(t, "creator", "0")
	fan := f.user(t, "fan", "15.00")
	tier := f.tier(t, creator, "15.00", 1)

	res, err := f.billing.Subscribe(ctx, fan, tier.ID)
	require.NoError(t, err)
	require.Equal(t, money.Amount(0), f.balance(t, fan))

	f.now = res.ExpiresAt.Add(time.Minute)
	report, err := f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.OutcomeLapsedInsufficientFunds, report.Results[0].Outcome)
	assert.Equal(t, money.Amount(0), f.balance(t, fan))
	assert.Equal(t, money.MustParse("15.00"), f.balance(t, creator))

	sub := f.subscription(t, res.SubscriptionID)
	require.NotNil(t, sub)
	assert.False(t, sub.AutoRenew)
	require.NotNil(t, sub.LapsedAt)
	assert.Equal(t, f.now, *sub.LapsedAt)

	// A lapsed row is not billed again once funds arrive.
	_, err = f.billing.AddBalance(ctx, fan, []byte(`50`))
	require.NoError(t, err)
	f.now = f.now.AddDate(0, 0, 7)
	report, err = f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, money.MustParse("50.00"), f.balance(t, fan))
}

func TestSweep_DeletesWhenRenewalOff(t *testing.T) {
	f := newFixture(t, BillingConfig{})
	ctx := context.Background()
	creator := f.user(t, "creator", "0")
	fan := f.user(t, "fan", "100.00")
	tier := f.tier(t, creator, "15.00", 1)

	res, err := f.billing.Subscribe(ctx, fan, tier.ID)
	require.NoError(t, err)
	off := false
	_, err = f.billing.SetAutoRenew(ctx, fan, res.SubscriptionID, &domain.SetAutoRenewRequest{AutoRenew: &off})
	require.NoError(t, err)

	f.now = res.ExpiresAt
	report, err := f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.OutcomeLapsedDeleted, report.Results[0].Outcome)
	assert.Nil(t, f.subscription(t, res.SubscriptionID))
	assert.Equal(t, money.MustParse("85.00"), f.balance(t, fan))
}

func TestSweep_IgnoresLiveSubscriptions(t *testing.T) {
	f := newFixture(t, BillingConfig{})
	ctx := context.Background()
	creator := f.user(t, "creator", "0")
	fan := f.user(t, "fan", "100.00")
	tier := f.tier(t, creator, "15.00", 1)

	res, err := f.billing.Subscribe(ctx, fan, tier.ID)
	require.NoError(t, err)

	report, err := f.billing.SweepExpired(ctx, res.ExpiresAt.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, report.Results)
	assert.Equal(t, money.MustParse("85.00"), f.balance(t, fan))
}

func TestSweep_IdempotentAndConserving(t *testing.T) {
	f := newFixture(t, BillingConfig{SweepConcurrency: 3})
	ctx := context.Background()
	creatorA := f.user(t, "creator-a", "0")
	creatorB := f.user(t, "creator-b", "0")
	rich := f.user(t, "rich", "200.00")
	poor := f.user(t, "poor", "15.00")
	quitter := f.user(t, "quitter", "100.00")

	tierA := f.tier(t, creatorA, "15.00", 1)
	tierB := f.tier(t, creatorB, "9.99", 1)

	var subIDs []string
	for _, p := range []struct {
		who  domain.Identity
		tier *domain.Tier
	}{
		{rich, tierA}, {rich, tierB}, {poor, tierA}, {quitter, tierB},
	} {
		res, err := f.billing.Subscribe(ctx, p.who, p.tier.ID)
		require.NoError(t, err)
		subIDs = append(subIDs, res.SubscriptionID)
	}
	off := false
	_, err := f.billing.SetAutoRenew(ctx, quitter, subIDs[3], &domain.SetAutoRenewRequest{AutoRenew: &off})
	require.NoError(t, err)

	for _, id := range subIDs {
		f.expire(t, id, baseTime.AddDate(0, 0, 20))
	}
	total := f.totalBalance(t)

	f.now = baseTime.AddDate(0, 1, 0)
	first, err := f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Counts[domain.OutcomeRenewed])
	assert.Equal(t, 1, first.Counts[domain.OutcomeLapsedInsufficientFunds])
	assert.Equal(t, 1, first.Counts[domain.OutcomeLapsedDeleted])
	assert.Equal(t, 0, first.Counts[domain.OutcomeFailed])
	assert.Equal(t, total, f.totalBalance(t))

	afterFirst := []money.Amount{f.balance(t, rich), f.balance(t, poor), f.balance(t, quitter), f.balance(t, creatorA), f.balance(t, creatorB)}

	second, err := f.billing.SweepExpired(ctx, f.now)
	require.NoError(t, err)
	assert.Empty(t, second.Results)
	assert.Equal(t, afterFirst, []money.Amount{f.balance(t, rich), f.balance(t, poor), f.balance(t, quitter), f.balance(t, creatorA), f.balance(t, creatorB)})
}

// failingStore makes AdvanceExpiry fail for one subscription, after the
// renewal has already moved money inside the same transaction.
type failingStore struct {
	*memory.Store
	failID string
}

func (s *failingStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(&failingTx{Tx: tx, failID: s.failID})
	})
}

type failingTx struct {
	repository.Tx
	failID string
}

func (t *failingTx) AdvanceExpiry(ctx context.Context, id string, at time.Time) error {
	if id == t.failID {
		return errors.New("write failed")
	}
	return t.Tx.AdvanceExpiry(ctx, id, at)
}

func TestSweep_FailureIsIsolatedAndRolledBack(t *testing.T) {
	f := newFixture(t, BillingConfig{})
	ctx := context.Background()
	creator := f.user(t, "creator", "0")
	fanA := f.user(t, "fan-a", "30.00")
	fanB := f.user(t, "fan-b", "30.00")
	tier := f.tier(t, creator, "15.00", 1)

	resA, err := f.billing.Subscribe(ctx, fanA, tier.ID)
	require.NoError(t, err)
	resB, err := f.billing.Subscribe(ctx, fanB, tier.ID)
	require.NoError(t, err)

	billing := NewBillingService(&failingStore{Store: f.store, failID: resA.SubscriptionID}, f.gateway, BillingConfig{}, zaptest.NewLogger(t))
	now := resA.ExpiresAt.Add(time.Hour)
	report, err := billing.SweepExpired(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Counts[domain.OutcomeFailed])
	assert.Equal(t, 1, report.Counts[domain.OutcomeRenewed])
	for _, r := range report.Results {
		if r.SubscriptionID == resA.SubscriptionID {
			assert.Equal(t, domain.OutcomeFailed, r.Outcome)
			assert.Contains(t, r.Error, "write failed")
		}
	}

	assert.Equal(t, money.MustParse("15.00"), f.balance(t, fanA))
	assert.Equal(t, money.Amount(0), f.balance(t, fanB))
	assert.Equal(t, money.MustParse("45.00"), f.balance(t, creator))
	assert.Equal(t, resA.ExpiresAt, f.subscription(t, resA.SubscriptionID).ExpiresAt)
	assert.Equal(t, resB.SubscriptionID, f.subscription(t, resB.SubscriptionID).ID)
}
