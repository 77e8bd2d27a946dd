package domain

import (
	"time"

	"github.com/creatorhub/backend/pkg/money"
)

// Tier limits.
const (
	MaxTierNameLength    = 50
	MaxTierDescLength    = 500
	MinTierPrice         = money.Amount(1)     // 0.01
	MaxTierPrice         = money.Amount(99999) // 999.99
	DefaultTierDuration  = 1
	MaxTierDuration      = 12
	MaxTiersPerCreator   = 10
	MaxBioLength         = 1000
	DefaultRenewalPeriod = 30 * 24 * time.Hour
)

// Tier is a creator-defined paid offering.
type Tier struct {
	ID               string       `json:"id"`
	CreatorID        string       `json:"creatorId"`
	Name             string       `json:"name"`
	Description      string       `json:"description,omitempty"`
	Price            money.Amount `json:"price"`
	Color            string       `json:"color,omitempty"`
	DurationInMonths int          `json:"durationInMonths"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// TierInput is one entry of a creator's desired tier set. An empty ID means a
// new tier.
type TierInput struct {
	ID               string       `json:"id,omitempty"`
	Name             string       `json:"name" validate:"required,max=50"`
	Description      string       `json:"description,omitempty" validate:"max=500"`
	Price            money.Amount `json:"price" validate:"min=1,max=99999"`
	Color            string       `json:"color,omitempty" validate:"omitempty,max=32"`
	DurationInMonths int          `json:"durationInMonths,omitempty" validate:"omitempty,min=1,max=12"`
}

// UpdateProfileRequest replaces a creator's profile fields and full tier list.
type UpdateProfileRequest struct {
	DisplayName string      `json:"displayName" validate:"required,max=100"`
	Bio         string      `json:"bio" validate:"max=1000"`
	Tiers       []TierInput `json:"subscriptionTiers" validate:"max=10,dive"`
}

// Subscription is a subscriber's commitment to a tier.
type Subscription struct {
	ID           string     `json:"id"`
	SubscriberID string     `json:"subscriberId"`
	TierID       string     `json:"tierId"`
	CreatorID    string     `json:"creatorId,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	AutoRenew    bool       `json:"autoRenew"`
	LapsedAt     *time.Time `json:"lapsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsActive reports whether the subscription grants access at t.
func (s *Subscription) IsActive(t time.Time) bool {
	return s.ExpiresAt.After(t)
}

// ExpiringSubscription is a sweep candidate joined with its tier and the
// subscriber's wallet.
type ExpiringSubscription struct {
	Subscription
	Price             money.Amount `json:"price"`
	DurationInMonths  int          `json:"durationInMonths"`
	SubscriberBalance money.Amount `json:"subscriberBalance"`
}

// SetAutoRenewRequest toggles renewal on one subscription.
type SetAutoRenewRequest struct {
	AutoRenew *bool `json:"autoRenew" validate:"required"`
}

// SubscribeResult is returned after a successful purchase.
type SubscribeResult struct {
	SubscriptionID string       `json:"subscriptionId"`
	NewBalance     money.Amount `json:"newBalance"`
	ExpiresAt      time.Time    `json:"expiresAt"`
	Extended       bool         `json:"extended"`
}

// SweepOutcome is the resolution of one expired subscription.
type SweepOutcome string

const (
	OutcomeRenewed                 SweepOutcome = "renewed"
	OutcomeLapsedInsufficientFunds SweepOutcome = "lapsed_insufficient_funds"
	OutcomeLapsedDeleted           SweepOutcome = "lapsed_deleted"
	OutcomeSkipped                 SweepOutcome = "skipped"
	OutcomeFailed                  SweepOutcome = "failed"
)

// SweepResult reports what happened to one subscription.
type SweepResult struct {
	SubscriptionID string       `json:"subscriptionId"`
	Outcome        SweepOutcome `json:"outcome"`
	Error          string       `json:"error,omitempty"`
}

// SweepReport is the full result of one sweep pass.
type SweepReport struct {
	Now     time.Time            `json:"now"`
	Results []SweepResult        `json:"results"`
	Counts  map[SweepOutcome]int `json:"counts"`
}

// RenewalMode selects how far a renewal advances the expiry.
type RenewalMode string

const (
	// RenewalFixed renews for DefaultRenewalPeriod regardless of the tier.
	RenewalFixed RenewalMode = "fixed"
	// RenewalTier renews for the tier's DurationInMonths.
	RenewalTier RenewalMode = "tier"
)
