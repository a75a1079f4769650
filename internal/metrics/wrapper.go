package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces consumed by the ml,
// ensemble, server, feed and narrative packages, which do not import prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Model metrics

func (w *MetricsWrapper) MLPredictionsInc(model string) {
	w.m.MLPredictions.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) MLFailuresInc(model string) {
	w.m.MLFailures.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) MLFallbackUseInc(model string) {
	w.m.MLFallbackUse.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(model string, seconds float64) {
	w.m.MLLatency.WithLabelValues(model).Observe(seconds)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(model string, score float64) {
	w.m.MLPredictionScores.WithLabelValues(model).Observe(score)
}

// DecisionObserve records one ensemble decision.
func (w *MetricsWrapper) DecisionObserve(level string, needsICU bool, score, confidence float64) {
	w.m.Decisions.WithLabelValues(level, strconv.FormatBool(needsICU)).Inc()
	w.m.DecisionScores.Observe(score)
	w.m.DecisionConfidence.Observe(confidence)
}

// Transport metrics

func (w *MetricsWrapper) HTTPRequestObserve(route string, code int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	w.m.HTTPLatency.WithLabelValues(route).Observe(seconds)
}

func (w *MetricsWrapper) FeedClientsSet(n int) {
	w.m.FeedClients.Set(float64(n))
}

func (w *MetricsWrapper) FeedBroadcastsInc() {
	w.m.FeedBroadcasts.Inc()
}

func (w *MetricsWrapper) NarrativeFailuresInc() {
	w.m.NarrativeFailures.Inc()
}

func (w *MetricsWrapper) ErrorsInc() {
	w.m.ErrorsTotal.Inc()
}
