package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      map[string]int
	failures         map[string]int
	fallbackUse      map[string]int
	latencySum       float64
	predictionScores []float64
}

func (m *MockMetrics) init() {
	if m.predictions == nil {
		m.predictions = make(map[string]int)
		m.failures = make(map[string]int)
		m.fallbackUse = make(map[string]int)
	}
}

func (m *MockMetrics) MLPredictionsInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.predictions[model]++
}

func (m *MockMetrics) MLFailuresInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.failures[model]++
}

func (m *MockMetrics) MLFallbackUseInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.fallbackUse[model]++
}

func (m *MockMetrics) MLLatencyObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLPredictionScoresObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

// Counts returns predictions, failures and fallback uses for one model kind.
func (m *MockMetrics) Counts(model string) (predictions, failures, fallbacks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[model], m.failures[model], m.fallbackUse[model]
}
