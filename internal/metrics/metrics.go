package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubscribeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscribe_total",
			Help: "Subscribe attempts by result",
		},
		[]string{"result"},
	)

	SweepOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_sweep_outcomes_total",
			Help: "Expired subscriptions resolved by the sweep, by outcome",
		},
		[]string{"outcome"},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "billing_sweep_duration_seconds",
			Help: "Duration of one sweep pass in seconds",
		},
	)

	SweepSkippedLocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_sweep_lock_contended_total",
			Help: "Sweep triggers that found another sweep running",
		},
	)

	TopUpCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_top_up_cents_total",
			Help: "Total wallet top-ups in cents",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)
)
