package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holdsAcquired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_holds_acquired_total",
		Help: "Seat holds successfully acquired.",
	})
	holdsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_holds_released_total",
		Help: "Seat holds explicitly released.",
	})
	holdsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_holds_expired_total",
		Help: "Seat holds reclaimed through TTL expiry.",
	})
	holdsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_holds_rejected_total",
		Help: "Acquire attempts rejected, by reason.",
	}, []string{"reason"})
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_settlements_total",
		Help: "Campaigns settled, by outcome.",
	}, []string{"outcome"})
	transferAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "funding_transfer_attempts_total",
		Help: "Transfer executions, by kind and result.",
	}, []string{"kind", "result"})
	schedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "funding_scheduler_tick_duration_seconds",
		Help:    "Wall time of one scheduler pass.",
		Buckets: prometheus.DefBuckets,
	})
	invariantViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "funding_invariant_violations_total",
		Help: "Seat counter observations outside the legal range.",
	})
)
