package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/metrics"
	"go.uber.org/zap"
)

const sweepLockKey = "sweep"

// Sweeper resolves expired subscriptions as of now.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (*domain.SweepReport, error)
}

// Runner triggers sweeps, both on a ticker and on demand, and makes sure
// only one runs at a time across replicas.
type Runner struct {
	sweeper  Sweeper
	locker   Locker
	interval time.Duration
	lockTTL  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewRunner creates a new Runner. An interval of zero disables the ticker.
func NewRunner(sweeper Sweeper, locker Locker, interval, lockTTL time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		log:      log,
		now:      time.Now,
	}
}

// RunOnce acquires the sweep lock and sweeps as of the current time. It
// returns a conflict error when another sweep holds the lock.
func (r *Runner) RunOnce(ctx context.Context) (*domain.SweepReport, error) {
	release, err := r.locker.TryLock(ctx, sweepLockKey, r.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			metrics.SweepSkippedLocked.Inc()
			return nil, domain.Conflict(domain.ErrSweepInProgress, "a sweep is already running")
		}
		return nil, domain.ErrInternal("failed to acquire sweep lock", err)
	}
	defer func() {
		// The lease may already have expired; that only matters for logging.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	return r.sweeper.SweepExpired(ctx, r.now())
}

// Start begins the sweep loop in a background goroutine. It returns
// immediately; the loop stops when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info("sweep ticker disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.log.Info("sweep ticker started", zap.Duration("interval", r.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

func (r *Runner) tick(ctx context.Context) {
	_, err := r.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrSweepInProgress):
		r.log.Debug("sweep skipped, another run holds the lock")
	default:
		r.log.Error("scheduled sweep failed", zap.Error(err))
	}
}
