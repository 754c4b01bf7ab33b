// Package observability holds the service-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Check-in outcomes recorded by RecordCheckInOutcome.
const (
	OutcomeCreated     = "created"
	OutcomeGymNotFound = "gym_not_found"
	OutcomeTooFar      = "too_far"
	OutcomeDailyLimit  = "daily_limit"
	OutcomeError       = "error"
)

var (
	checkInsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "checkins",
		Name:      "attempts_total",
		Help:      "Check-in attempts grouped by outcome.",
	}, []string{"outcome"})

	checkInDistance = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "checkins",
		Name:      "distance_km",
		Help:      "Distance between the user and the gym on check-in attempts.",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 1, 5, 25},
	})

	checkInPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "persistence",
		Name:      "last_checkin_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent check-in persisted to Postgres.",
	})

	cacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "cache",
		Name:      "daily_lookups_total",
		Help:      "Daily check-in cache lookups grouped by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(checkInsCounter, checkInDistance, checkInPersistGauge, cacheCounter)
}

// RecordCheckInOutcome increments the attempt counter for outcome.
func RecordCheckInOutcome(outcome string) {
	checkInsCounter.WithLabelValues(outcome).Inc()
}

// RecordCheckInDistance observes the user-to-gym distance of an attempt.
func RecordCheckInDistance(km float64) {
	checkInDistance.Observe(km)
}

// RecordCheckInPersisted updates the persistence watermark gauge.
func RecordCheckInPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	checkInPersistGauge.Set(float64(ts.Unix()))
}

// RecordCacheLookup counts a daily cache lookup result.
func RecordCacheLookup(result string) {
	cacheCounter.WithLabelValues(result).Inc()
}

// CheckInOutcomes exposes the attempt counter for assertions in tests.
func CheckInOutcomes() *prometheus.CounterVec {
	return checkInsCounter
}

// CacheLookups exposes the daily cache counter for assertions in tests.
func CacheLookups() *prometheus.CounterVec {
	return cacheCounter
}
