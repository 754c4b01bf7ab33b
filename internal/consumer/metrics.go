package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeProcessed    = "processed"
	outcomeHandlerError = "handler_error"
	outcomeCommitError  = "commit_error"
)

var (
	eventOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "consumer",
		Name:      "events_total",
		Help:      "Check-in and gym events read back from Kafka, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	decodeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "consumer",
		Name:      "decode_failures_total",
		Help:      "Records dropped because their framing or headers could not be decoded.",
	}, []string{"topic", "reason"})

	eventLag = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gym_checkin_service",
		Subsystem: "consumer",
		Name:      "event_lag_seconds",
		Help:      "Time between an event being published and being handled.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(eventOutcomes, decodeFailures, eventLag)
}

func recordOutcome(msg Message, outcome string) {
	eventOutcomes.WithLabelValues(msg.EventType, outcome).Inc()
}

func observeLag(msg Message, handledAt time.Time) {
	if msg.Timestamp.IsZero() {
		return
	}
	lag := handledAt.Sub(msg.Timestamp)
	if lag < 0 {
		lag = 0
	}
	eventLag.WithLabelValues(msg.EventType).Observe(lag.Seconds())
}

func recordDecodeFailure(topic, reason string) {
	decodeFailures.WithLabelValues(topic, reason).Inc()
}
