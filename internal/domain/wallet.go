package domain

import (
	"encoding/json"
	"time"

	"github.com/creatorhub/backend/pkg/money"
)

// EntryKind classifies a wallet movement.
type EntryKind string

const (
	EntryTopUp              EntryKind = "top_up"
	EntrySubscriptionCharge EntryKind = "subscription_charge"
	EntrySubscriptionPayout EntryKind = "subscription_payout"
	EntryRenewalCharge      EntryKind = "renewal_charge"
	EntryRenewalPayout      EntryKind = "renewal_payout"
)

// Entry describes why a balance moves. The store fills in amount and
// resulting balance.
type Entry struct {
	Kind      EntryKind
	Reference string
}

// WalletEntry is one row of a wallet's history. Amount is signed.
type WalletEntry struct {
	ID           string       `json:"id"`
	UserID       string       `json:"userId"`
	Kind         EntryKind    `json:"kind"`
	Amount       money.Amount `json:"amount"`
	BalanceAfter money.Amount `json:"balanceAfter"`
	Reference    string       `json:"reference,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// BalanceResponse is the API response for a wallet balance.
type BalanceResponse struct {
	UserID  string       `json:"userId"`
	Balance money.Amount `json:"balance"`
}

// AddBalanceRequest is a wallet top-up. Amount is kept raw so malformed
// values are reported as an invalid amount rather than a malformed body.
type AddBalanceRequest struct {
	Amount json.RawMessage `json:"amount"`
}
