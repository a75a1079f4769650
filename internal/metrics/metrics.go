// Package metrics provides Prometheus metrics collection for the ICU risk service.
// It defines every prediction, decision, transport and feed metric that is
// exposed via the Prometheus metrics endpoint for monitoring and alerting.
//
// Model-level metrics carry a "model" label ("tabular" or "sequence") so the
// two ensemble members and their fallbacks can be told apart.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Model metrics, labelled by model kind
	MLPredictions      *prometheus.CounterVec   // Predictions served per model
	MLFailures         *prometheus.CounterVec   // Inference failures per model
	MLFallbackUse      *prometheus.CounterVec   // Estimates produced by fallback rules
	MLLatency          *prometheus.HistogramVec // Per-model prediction latency
	MLPredictionScores *prometheus.HistogramVec // Per-model risk score distribution

	// Decision metrics
	Decisions          *prometheus.CounterVec // Ensemble decisions by risk level and ICU flag
	DecisionScores     prometheus.Histogram   // Fused risk score distribution
	DecisionConfidence prometheus.Histogram   // Inter-model agreement distribution

	// Transport metrics
	HTTPRequests   *prometheus.CounterVec   // Requests by route and status code
	HTTPLatency    *prometheus.HistogramVec // Request latency by route
	FeedClients    prometheus.Gauge         // Connected websocket clients
	FeedBroadcasts prometheus.Counter       // Events published to the feed

	// Enrichment and system metrics
	NarrativeFailures prometheus.Counter // Narrative calls that fell back to the template
	ErrorsTotal       prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of model predictions made",
		}, []string{"model"}),
		MLFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of model inference failures",
		}, []string{"model"}),
		MLFallbackUse: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_fallback_use_total",
			Help: "Total number of estimates produced by fallback rules",
		}, []string{"model"}),
		MLLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Model prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"model"}),
		MLPredictionScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of model risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"model"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "icu_decisions_total",
			Help: "Total number of ensemble decisions",
		}, []string{"risk_level", "needs_icu"}),
		DecisionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "icu_decision_scores",
			Help:    "Distribution of fused risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		DecisionConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "icu_decision_confidence",
			Help:    "Distribution of inter-model agreement",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "code"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		FeedClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feed_clients",
			Help: "Number of connected decision feed clients",
		}),
		FeedBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_broadcasts_total",
			Help: "Total number of events published to the decision feed",
		}),
		NarrativeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "narrative_failures_total",
			Help: "Total number of narrative requests that kept the template summary",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
