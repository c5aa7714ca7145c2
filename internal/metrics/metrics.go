package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whispr_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whispr_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})
)

// Identity metrics
var (
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whispr_activations_total",
		Help: "Activation attempts by result",
	}, []string{"result"})
)

// Moderation metrics
var (
	ModerationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whispr_moderation_outcomes_total",
		Help: "Confession moderation outcomes (invalid, pii, service_error, flagged, clean)",
	}, []string{"outcome"})

	ModerationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "whispr_moderation_latency_seconds",
		Help:    "Latency of the external toxicity classifier",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

// Board metrics
var (
	ConfessionsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispr_confessions_submitted_total",
		Help: "Confessions stored for review",
	})

	CommentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispr_comments_total",
		Help: "Comments stored",
	})

	InteractionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whispr_interactions_total",
		Help: "Interaction toggles by resulting state",
	}, []string{"state"})

	InteractionRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispr_interaction_retries_total",
		Help: "Interaction transactions restarted after a concurrent write",
	})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whispr_reports_total",
		Help: "Reports filed by content type",
	}, []string{"content_type"})

	AdminActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "whispr_admin_actions_total",
		Help: "Admin commands executed",
	}, []string{"action"})
)

// Realtime metrics
var (
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "whispr_websocket_clients",
		Help: "Currently connected websocket clients",
	})
)
