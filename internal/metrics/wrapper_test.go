package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"icu-risk/internal/ensemble"
	"icu-risk/internal/ml"
)

// compile-time checks for the consumers of the wrapper
var (
	_ ml.MetricsInterface = (*MetricsWrapper)(nil)
	_ ensemble.Metrics    = (*MetricsWrapper)(nil)
)

func newTestWrapper() (*Metrics, *MetricsWrapper) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	return metrics, NewWrapper(metrics)
}

func TestNewWrapper(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_MLMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	wrapper.MLPredictionsInc(ml.KindTabular)
	wrapper.MLPredictionsInc(ml.KindTabular)
	wrapper.MLPredictionsInc(ml.KindSequence)
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues(ml.KindTabular)); v != 2 {
		t.Errorf("Expected 2 tabular predictions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues(ml.KindSequence)); v != 1 {
		t.Errorf("Expected 1 sequence prediction, got %f", v)
	}

	wrapper.MLFailuresInc(ml.KindSequence)
	if v := testutil.ToFloat64(metrics.MLFailures.WithLabelValues(ml.KindSequence)); v != 1 {
		t.Errorf("Expected 1 sequence failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.MLFailures.WithLabelValues(ml.KindTabular)); v != 0 {
		t.Errorf("Expected no tabular failures, got %f", v)
	}

	wrapper.MLFallbackUseInc(ml.KindTabular)
	if v := testutil.ToFloat64(metrics.MLFallbackUse.WithLabelValues(ml.KindTabular)); v != 1 {
		t.Errorf("Expected 1 tabular fallback use, got %f", v)
	}

	wrapper.MLLatencyObserve(ml.KindTabular, 0.002)
	wrapper.MLPredictionScoresObserve(ml.KindTabular, 0.75)
	if n := testutil.CollectAndCount(metrics.MLLatency); n != 1 {
		t.Errorf("Expected 1 latency series, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.MLPredictionScores); n != 1 {
		t.Errorf("Expected 1 score series, got %d", n)
	}
}

func TestMetricsWrapper_DecisionObserve(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	wrapper.DecisionObserve("High", true, 0.65, 0.9)
	wrapper.DecisionObserve("High", true, 0.7, 0.8)
	wrapper.DecisionObserve("Low", false, 0.1, 1.0)

	if v := testutil.ToFloat64(metrics.Decisions.WithLabelValues("High", "true")); v != 2 {
		t.Errorf("Expected 2 High decisions, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.Decisions.WithLabelValues("Low", "false")); v != 1 {
		t.Errorf("Expected 1 Low decision, got %f", v)
	}

	if n := testutil.CollectAndCount(metrics.DecisionScores); n != 1 {
		t.Errorf("Expected 1 score histogram, got %d", n)
	}
	if n := testutil.CollectAndCount(metrics.DecisionConfidence); n != 1 {
		t.Errorf("Expected 1 confidence histogram, got %d", n)
	}
}

func TestMetricsWrapper_TransportMethods(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	wrapper.HTTPRequestObserve("/predict", 200, 0.01)
	wrapper.HTTPRequestObserve("/predict", 400, 0.001)
	wrapper.HTTPRequestObserve("/predict", 200, 0.02)

	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "200")); v != 2 {
		t.Errorf("Expected 2 successful requests, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/predict", "400")); v != 1 {
		t.Errorf("Expected 1 bad request, got %f", v)
	}

	wrapper.FeedClientsSet(3)
	if v := testutil.ToFloat64(metrics.FeedClients); v != 3 {
		t.Errorf("Expected 3 feed clients, got %f", v)
	}
	wrapper.FeedClientsSet(1)
	if v := testutil.ToFloat64(metrics.FeedClients); v != 1 {
		t.Errorf("Expected 1 feed client, got %f", v)
	}

	wrapper.FeedBroadcastsInc()
	wrapper.NarrativeFailuresInc()
	wrapper.ErrorsInc()
	if v := testutil.ToFloat64(metrics.FeedBroadcasts); v != 1 {
		t.Errorf("Expected 1 broadcast, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.NarrativeFailures); v != 1 {
		t.Errorf("Expected 1 narrative failure, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.ErrorsTotal); v != 1 {
		t.Errorf("Expected 1 error, got %f", v)
	}
}

func TestMetricsWrapper_ConcurrentAccess(t *testing.T) {
	metrics, wrapper := newTestWrapper()

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				wrapper.MLPredictionsInc(ml.KindTabular)
				wrapper.MLLatencyObserve(ml.KindTabular, 0.01)
				wrapper.DecisionObserve("Low", false, 0.1, 0.95)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	expected := 1000.0 // 10 goroutines * 100 increments
	if v := testutil.ToFloat64(metrics.MLPredictions.WithLabelValues(ml.KindTabular)); v != expected {
		t.Errorf("Expected %f predictions after concurrent access, got %f", expected, v)
	}
	if v := testutil.ToFloat64(metrics.Decisions.WithLabelValues("Low", "false")); v != expected {
		t.Errorf("Expected %f decisions after concurrent access, got %f", expected, v)
	}
}

func TestMetricsWrapper_NilGuard(t *testing.T) {
	wrapper := &MetricsWrapper{m: nil}

	// NewWrapper ensures m is never nil
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when accessing nil metrics")
		}
	}()

	wrapper.MLPredictionsInc(ml.KindTabular)
}

func TestNewWithRegistry_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic when registering metrics twice")
		}
	}()
	NewWithRegistry(registry)
}

func BenchmarkMetricsWrapper_MLPredictionsInc(b *testing.B) {
	_, wrapper := newTestWrapper()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.MLPredictionsInc(ml.KindTabular)
	}
}

func BenchmarkMetricsWrapper_DecisionObserve(b *testing.B) {
	_, wrapper := newTestWrapper()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		wrapper.DecisionObserve("Medium", false, 0.45, 0.9)
	}
}
