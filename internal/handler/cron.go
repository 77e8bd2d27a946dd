package handler

import (
	"context"
	"net/http"

	"github.com/creatorhub/backend/internal/domain"
)

// SweepRunner runs one guarded sweep pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) (*domain.SweepReport, error)
}

// CronHandler exposes the renewal sweep to an external scheduler.
type CronHandler struct {
	runner SweepRunner
}

// NewCronHandler creates a new CronHandler.
func NewCronHandler(runner SweepRunner) *CronHandler {
	return &CronHandler{runner: runner}
}

// Sweep handles POST /api/cron/sweep. Individual subscription failures are
// reported in the body; the status is 200 unless the sweep could not run.
func (h *CronHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.runner.RunOnce(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, report)
}
