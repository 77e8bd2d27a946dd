package handler

import (
	"net/http"
	"strconv"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/service"
	"github.com/go-chi/chi/v5"
)

// BillingHandler handles wallet and subscription endpoints.
type BillingHandler struct {
	billing *service.BillingService
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billing *service.BillingService) *BillingHandler {
	return &BillingHandler{billing: billing}
}

// Subscribe handles POST /api/tiers/{id}/subscribe.
func (h *BillingHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	result, err := h.billing.Subscribe(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, result)
}

// ListSubscriptions handles GET /api/subscriptions.
func (h *BillingHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.billing.ListSubscriptions(r.Context(), identity(r))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, subs)
}

// SetAutoRenew handles PATCH /api/subscriptions/{id}.
func (h *BillingHandler) SetAutoRenew(w http.ResponseWriter, r *http.Request) {
	var req domain.SetAutoRenewRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	sub, err := h.billing.SetAutoRenew(r.Context(), identity(r), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, sub)
}

// Wallet handles GET /api/wallet.
func (h *BillingHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	balance, err := h.billing.GetWallet(r.Context(), identity(r))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, balance)
}

// Entries handles GET /api/wallet/entries?limit=N.
func (h *BillingHandler) Entries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, domain.ErrBadRequest("limit must be a positive integer"))
			return
		}
		limit = n
	}

	entries, err := h.billing.ListEntries(r.Context(), identity(r), limit)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, entries)
}

// AddBalance handles POST /api/balance/add.
func (h *BillingHandler) AddBalance(w http.ResponseWriter, r *http.Request) {
	var req domain.AddBalanceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	balance, err := h.billing.AddBalance(r.Context(), identity(r), req.Amount)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, balance)
}
