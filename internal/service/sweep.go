package service

import (
	"context"
	"errors"
	"time"

	"github.com/creatorhub/backend/internal/domain"
	"github.com/creatorhub/backend/internal/metrics"
	"github.com/creatorhub/backend/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SweepExpired resolves every subscription that expired at or before now.
// Each subscription is handled in its own transaction; a failure is reported
// in its result and does not stop the others. Running it twice with the same
// now changes nothing the second time.
func (s *BillingService) SweepExpired(ctx context.Context, now time.Time) (_ *domain.SweepReport, err error) {
	ctx, span := tracer.Start(ctx, "billing.SweepExpired")
	defer func() { endSpan(span, err) }()

	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var candidates []*domain.ExpiringSubscription
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		candidates, err = tx.FindExpiring(ctx, now)
		return err
	})
	if err != nil {
		return nil, domain.ErrInternal("failed to list expired subscriptions", err)
	}
	span.SetAttributes(attribute.Int("sweep.candidates", len(candidates)))

	results := make([]domain.SweepResult, len(candidates))
	var g errgroup.Group
	g.SetLimit(s.cfg.SweepConcurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			outcome, err := s.resolveExpired(ctx, c.ID, now)
			results[i] = domain.SweepResult{SubscriptionID: c.ID, Outcome: outcome}
			if err != nil {
				results[i].Outcome = domain.OutcomeFailed
				results[i].Error = err.Error()
				s.log.Warn("failed to resolve expired subscription",
					zap.String("subscription_id", c.ID),
					zap.Error(err),
				)
			}
			metrics.SweepOutcomes.WithLabelValues(string(results[i].Outcome)).Inc()
			return nil
		})
	}
	_ = g.Wait()

	report := &domain.SweepReport{
		Now:     now,
		Results: results,
		Counts: map[domain.SweepOutcome]int{
			domain.OutcomeRenewed:                 0,
			domain.OutcomeLapsedInsufficientFunds: 0,
			domain.OutcomeLapsedDeleted:           0,
			domain.OutcomeSkipped:                 0,
			domain.OutcomeFailed:                  0,
		},
	}
	for _, r := range results {
		report.Counts[r.Outcome]++
	}

	s.log.Info("sweep finished",
		zap.Time("now", now),
		zap.Int("candidates", len(candidates)),
		zap.Int("renewed", report.Counts[domain.OutcomeRenewed]),
		zap.Int("lapsed_insufficient_funds", report.Counts[domain.OutcomeLapsedInsufficientFunds]),
		zap.Int("lapsed_deleted", report.Counts[domain.OutcomeLapsedDeleted]),
		zap.Int("failed", report.Counts[domain.OutcomeFailed]),
		zap.Duration("took", time.Since(start)),
	)
	return report, nil
}

func (s *BillingService) resolveExpired(ctx context.Context, id string, now time.Time) (domain.SweepOutcome, error) {
	var outcome domain.SweepOutcome
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		sub, err := tx.LockExpiring(ctx, id, now)
		if err != nil {
			return err
		}
		if sub == nil {
			outcome = domain.OutcomeSkipped
			return nil
		}

		if !sub.AutoRenew {
			if err := tx.DeleteSubscription(ctx, sub.ID); err != nil {
				return err
			}
			outcome = domain.OutcomeLapsedDeleted
			return nil
		}

		_, err = tx.Decrement(ctx, sub.SubscriberID, sub.Price, domain.Entry{Kind: domain.EntryRenewalCharge, Reference: sub.ID})
		if errors.Is(err, domain.ErrInsufficientFunds) {
			lapsedAt := now
			if err := tx.DisableAutoRenew(ctx, sub.ID, &lapsedAt); err != nil {
				return err
			}
			outcome = domain.OutcomeLapsedInsufficientFunds
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.Increment(ctx, sub.CreatorID, sub.Price, domain.Entry{Kind: domain.EntryRenewalPayout, Reference: sub.ID}); err != nil {
			return err
		}
		if err := tx.AdvanceExpiry(ctx, sub.ID, s.renewedUntil(now, sub.DurationInMonths)); err != nil {
			return err
		}
		outcome = domain.OutcomeRenewed
		return nil
	})
	if err != nil {
		return domain.OutcomeFailed, err
	}
	return outcome, nil
}

func (s *BillingService) renewedUntil(now time.Time, months int) time.Time {
	if s.cfg.RenewalMode == domain.RenewalTier && months > 0 {
		return now.AddDate(0, months, 0)
	}
	return now.Add(domain.DefaultRenewalPeriod)
}
