// Package memory is an in-process Store. Each WithTx works on a private copy
// of the data and swaps it in only on success, so units are serialized and
// all-or-nothing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/repository"
	"github.com/creatorhub/backend/pkg/money"
	"github.com/google/uuid"
)

type state struct {
	users   map[string]*domain.User
	wallets map[string]money.Amount
	entries []*domain.WalletEntry
	tiers   map[string]*domain.Tier
	subs    map[string]*domain.Subscription
}

func newState() *state {
	return &state{
		users:   make(map[string]*domain.User),
		wallets: make(map[string]money.Amount),
		tiers:   make(map[string]*domain.Tier),
		subs:    make(map[string]*domain.Subscription),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.entries = make([]*domain.WalletEntry, len(s.entries))
	copy(c.entries, s.entries)
	for k, v := range s.tiers {
		t := *v
		c.tiers[k] = &t
	}
	for k, v := range s.subs {
		sub := *v
		c.subs[k] = &sub
	}
	return c
}

// Store is the memory-backed repository.Store.
type Store struct {
	mu    sync.Mutex
	data  *state
	clock func() time.Time
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*tx)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{data: newState(), clock: time.Now}
}

// SetClock replaces the source of row timestamps.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// WithTx runs fn against a snapshot and commits it only if fn returns nil and
// ctx is still live. WithTx must not be called from inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&tx{st: work, clock: s.clock}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

type tx struct {
	st    *state
	clock func() time.Time
}

// --- users ---

func (t *tx) CreateUser(_ context.Context, u *domain.User) error {
	for _, existing := range t.st.users {
		if existing.ID == u.ID || existing.Username == u.Username {
			return domain.ErrConflict
		}
	}
	cp := *u
	t.st.users[u.ID] = &cp
	t.st.wallets[u.ID] = 0
	return nil
}

func (t *tx) GetUser(_ context.Context, id string) (*domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (t *tx) ListUsers(_ context.Context) ([]*domain.User, error) {
	users := make([]*domain.User, 0, len(t.st.users))
	for _, u := range t.st.users {
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.After(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (t *tx) LockUser(_ context.Context, id string) error {
	if _, ok := t.st.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

func (t *tx) UpdateProfile(_ context.Context, id, displayName, bio string) (*domain.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u.DisplayName = displayName
	u.Bio = bio
	u.UpdatedAt = t.clock()
	cp := *u
	return &cp, nil
}

func (t *tx) Stats(_ context.Context, now time.Time) (*repository.Stats, error) {
	s := &repository.Stats{Users: len(t.st.users), Tiers: len(t.st.tiers)}
	for _, sub := range t.st.subs {
		if sub.IsActive(now) {
			s.ActiveSubscriptions++
		}
	}
	for _, b := range t.st.wallets {
		s.TotalBalance += b
	}
	return s, nil
}

// --- wallets ---

func (t *tx) GetBalance(_ context.Context, userID string) (money.Amount, error) {
	b, ok := t.st.wallets[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	return b, nil
}

func (t *tx) Increment(_ context.Context, userID string, amount money.Amount, entry domain.Entry) (money.Amount, error) {
	if !amount.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}
	b, ok := t.st.wallets[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	b += amount
	t.st.wallets[userID] = b
	t.record(userID, amount, b, entry)
	return b, nil
}

func (t *tx) Decrement(_ context.Context, userID string, amount money.Amount, entry domain.Entry) (money.Amount, error) {
	if !amount.IsPositive() {
		return 0, domain.ErrInvalidAmount
	}
	b, ok := t.st.wallets[userID]
	if !ok {
		return 0, domain.ErrUserNotFound
	}
	if b < amount {
		return 0, domain.ErrInsufficientFunds
	}
	b -= amount
	t.st.wallets[userID] = b
	t.record(userID, -amount, b, entry)
	return b, nil
}

func (t *tx) ListEntries(_ context.Context, userID string, limit int) ([]*domain.WalletEntry, error) {
	out := []*domain.WalletEntry{}
	for i := len(t.st.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := t.st.entries[i]; e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *tx) record(userID string, amount, after money.Amount, entry domain.Entry) {
	t.st.entries = append(t.st.entries, &domain.WalletEntry{
		ID:           uuid.New().String(),
		UserID:       userID,
		Kind:         entry.Kind,
		Amount:       amount,
		BalanceAfter: after,
		Reference:    entry.Reference,
		CreatedAt:    t.clock(),
	})
}

// --- tiers ---

func (t *tx) GetTier(_ context.Context, id string) (*domain.Tier, error) {
	tier, ok := t.st.tiers[id]
	if !ok {
		return nil, nil
	}
	cp := *tier
	return &cp, nil
}

// GetTierForShare is GetTier: units never overlap in memory.
func (t *tx) GetTierForShare(ctx context.Context, id string) (*domain.Tier, error) {
	return t.GetTier(ctx, id)
}

func (t *tx) LockTiers(context.Context, []string) error { return nil }

func (t *tx) ListTiersByCreator(_ context.Context, creatorID string) ([]*domain.Tier, error) {
	tiers := []*domain.Tier{}
	for _, tier := range t.st.tiers {
		if tier.CreatorID == creatorID {
			cp := *tier
			tiers = append(tiers, &cp)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].Price != tiers[j].Price {
			return tiers[i].Price < tiers[j].Price
		}
		if !tiers[i].CreatedAt.Equal(tiers[j].CreatedAt) {
			return tiers[i].CreatedAt.Before(tiers[j].CreatedAt)
		}
		return tiers[i].ID < tiers[j].ID
	})
	return tiers, nil
}

func (t *tx) UpsertTier(_ context.Context, creatorID string, in *domain.Tier) (*domain.Tier, error) {
	now := t.clock()
	if existing, ok := t.st.tiers[in.ID]; ok && in.ID != "" && existing.CreatorID == creatorID {
		existing.Name = in.Name
		existing.Description = in.Description
		existing.Price = in.Price
		existing.Color = in.Color
		existing.DurationInMonths = in.DurationInMonths
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}

	created := *in
	created.ID = uuid.New().String()
	created.CreatorID = creatorID
	created.CreatedAt = now
	created.UpdatedAt = now
	t.st.tiers[created.ID] = &created
	cp := created
	return &cp, nil
}

func (t *tx) DeleteTiersExcept(_ context.Context, creatorID string, keep []string) (int64, error) {
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for id, tier := range t.st.tiers {
		if tier.CreatorID == creatorID && !kept[id] {
			t.deleteTier(id)
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteTier(_ context.Context, creatorID, tierID string) error {
	tier, ok := t.st.tiers[tierID]
	if !ok || tier.CreatorID != creatorID {
		return domain.ErrTierNotFound
	}
	t.deleteTier(tierID)
	return nil
}

// deleteTier cascades to the tier's subscriptions like the foreign key does.
func (t *tx) deleteTier(id string) {
	delete(t.st.tiers, id)
	for subID, sub := range t.st.subs {
		if sub.TierID == id {
			delete(t.st.subs, subID)
		}
	}
}

func (t *tx) CountLiveSubscriptions(_ context.Context, tierIDs []string, now time.Time) (int, error) {
	ids := make(map[string]bool, len(tierIDs))
	for _, id := range tierIDs {
		ids[id] = true
	}
	n := 0
	for _, sub := range t.st.subs {
		if ids[sub.TierID] && sub.IsActive(now) {
			n++
		}
	}
	return n, nil
}

// --- subscriptions ---

func (t *tx) withCreator(sub *domain.Subscription) *domain.Subscription {
	cp := *sub
	if tier, ok := t.st.tiers[sub.TierID]; ok {
		cp.CreatorID = tier.CreatorID
	}
	return &cp
}

func (t *tx) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	sub, ok := t.st.subs[id]
	if !ok {
		return nil, nil
	}
	return t.withCreator(sub), nil
}

func (t *tx) FindSubscriptionByPair(_ context.Context, subscriberID, tierID string) (*domain.Subscription, error) {
	for _, sub := range t.st.subs {
		if sub.SubscriberID == subscriberID && sub.TierID == tierID {
			return t.withCreator(sub), nil
		}
	}
	return nil, nil
}

func (t *tx) ListSubscriptionsBySubscriber(_ context.Context, subscriberID string) ([]*domain.Subscription, error) {
	subs := []*domain.Subscription{}
	for _, sub := range t.st.subs {
		if sub.SubscriberID == subscriberID {
			subs = append(subs, t.withCreator(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].ExpiresAt.Equal(subs[j].ExpiresAt) {
			return subs[i].ExpiresAt.After(subs[j].ExpiresAt)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (t *tx) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	if _, ok := t.st.tiers[sub.TierID]; !ok {
		return domain.ErrTierNotFound
	}
	for _, existing := range t.st.subs {
		if existing.SubscriberID == sub.SubscriberID && existing.TierID == sub.TierID {
			return domain.ErrAlreadySubscribed
		}
	}
	cp := *sub
	t.st.subs[sub.ID] = &cp
	return nil
}

func (t *tx) update(id string, fn func(sub *domain.Subscription)) error {
	sub, ok := t.st.subs[id]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	fn(sub)
	sub.UpdatedAt = t.clock()
	return nil
}

func (t *tx) ExtendSubscription(_ context.Context, id string, expiresAt time.Time) error {
	return t.update(id, func(sub *domain.Subscription) {
		sub.ExpiresAt = expiresAt
		sub.AutoRenew = true
		sub.LapsedAt = nil
	})
}

func (t *tx) AdvanceExpiry(_ context.Context, id string, expiresAt time.Time) error {
	return t.update(id, func(sub *domain.Subscription) {
		sub.ExpiresAt = expiresAt
	})
}

func (t *tx) DisableAutoRenew(_ context.Context, id string, lapsedAt *time.Time) error {
	return t.update(id, func(sub *domain.Subscription) {
		sub.AutoRenew = false
		if lapsedAt != nil {
			at := *lapsedAt
			sub.LapsedAt = &at
		} else {
			sub.LapsedAt = nil
		}
	})
}

func (t *tx) SetAutoRenew(_ context.Context, id string, enabled bool) error {
	return t.update(id, func(sub *domain.Subscription) {
		sub.AutoRenew = enabled
	})
}

func (t *tx) DeleteSubscription(_ context.Context, id string) error {
	if _, ok := t.st.subs[id]; !ok {
		return domain.ErrSubscriptionNotFound
	}
	delete(t.st.subs, id)
	return nil
}

func (t *tx) expiring(sub *domain.Subscription, now time.Time) *domain.ExpiringSubscription {
	if sub.ExpiresAt.After(now) || sub.LapsedAt != nil {
		return nil
	}
	tier, ok := t.st.tiers[sub.TierID]
	if !ok {
		return nil
	}
	return &domain.ExpiringSubscription{
		Subscription:      *t.withCreator(sub),
		Price:             tier.Price,
		DurationInMonths:  tier.DurationInMonths,
		SubscriberBalance: t.st.wallets[sub.SubscriberID],
	}
}

func (t *tx) FindExpiring(_ context.Context, now time.Time) ([]*domain.ExpiringSubscription, error) {
	out := []*domain.ExpiringSubscription{}
	for _, sub := range t.st.subs {
		if e := t.expiring(sub, now); e != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) LockExpiring(_ context.Context, id string, now time.Time) (*domain.ExpiringSubscription, error) {
	sub, ok := t.st.subs[id]
	if !ok {
		return nil, nil
	}
	return t.expiring(sub, now), nil
}
