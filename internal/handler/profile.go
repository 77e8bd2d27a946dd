package handler

import (
	"net/http"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/service"
	"github.com/go-chi/chi/v5"
)

// ProfileHandler handles creator profile and tier endpoints.
type ProfileHandler struct {
	tiers *service.TierService
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(tiers *service.TierService) *ProfileHandler {
	return &ProfileHandler{tiers: tiers}
}

// Me handles GET /api/me.
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.tiers.GetProfile(r.Context(), identity(r))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, profile)
}

// Update handles PUT /api/me/profile.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	profile, err := h.tiers.UpdateCreatorTiers(r.Context(), identity(r), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, profile)
}

// ListTiers handles GET /api/creators/{id}/tiers.
func (h *ProfileHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.tiers.ListTiers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, tiers)
}

// DeleteTier handles DELETE /api/tiers/{id}.
func (h *ProfileHandler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	if err := h.tiers.DeleteTier(r.Context(), identity(r), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
