package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BookingsStarted counts book-and-pay attempts by booking type.
	BookingsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelbook",
			Name:      "bookings_started_total",
			Help:      "The total number of book-and-pay attempts",
		},
		[]string{"type"},
	)

	// BookingsCompleted counts terminal saga outcomes by result code.
	BookingsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelbook",
			Name:      "bookings_completed_total",
			Help:      "The total number of book-and-pay sagas reaching a terminal state",
		},
		[]string{"result"},
	)

	// CompensationsIssued counts refunds and supplier cancellations
	// triggered by saga compensation.
	CompensationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelbook",
			Name:      "compensations_issued_total",
			Help:      "The total number of compensating actions issued",
		},
		[]string{"action"},
	)

	// ReconciliationsApplied counts reconciliation outcomes:
	// "unchanged", "applied", "resumed" or "alerted".
	ReconciliationsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelbook",
			Name:      "reconciliations_total",
			Help:      "The total number of payment reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	// OpsAlertsRaised counts operator queue entries by kind.
	OpsAlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "travelbook",
			Name:      "ops_alerts_total",
			Help:      "The total number of operator alerts raised",
		},
		[]string{"kind"},
	)

	// MessagesProcessed counts processed messages.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed counts message processing failures.
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration tracks time spent processing messages.
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)
)
