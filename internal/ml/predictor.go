package ml

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrModelUnavailable is returned by offline scoring when no artifact was loaded.
var ErrModelUnavailable = errors.New("model unavailable")

// Model type tags carried by Estimate.ModelType.
const (
	TagTabular          = "xgboost"
	TagTabularFallback  = "fallback_rules"
	TagSequence         = "lstm"
	TagSequenceFallback = "lstm_fallback"
)

// Metric label values identifying which sub-model reported.
const (
	KindTabular  = "tabular"
	KindSequence = "sequence"
)

// MetricsInterface defines metrics methods needed by the predictors
type MetricsInterface interface {
	MLPredictionsInc(model string)
	MLFailuresInc(model string)
	MLFallbackUseInc(model string)
	MLLatencyObserve(model string, seconds float64)
	MLPredictionScoresObserve(model string, score float64)
}

// Estimate is one sub-model's output. Success is true whenever RiskScore holds a usable
// value in [0,1]. Fallback marks estimates produced by rules instead of an artifact;
// Reason then says why.
type Estimate struct {
	RiskScore   float64  `json:"risk_score"`
	ModelType   string   `json:"model_type"`
	Success     bool     `json:"success"`
	Fallback    bool     `json:"fallback"`
	Reason      string   `json:"reason,omitempty"`
	Prediction  *int     `json:"prediction,omitempty"`
	RiskFactors []string `json:"risk_factors,omitempty"`
}

func label(positive bool) *int {
	l := 0
	if positive {
		l = 1
	}
	return &l
}

func checkProbability(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return fmt.Errorf("non-finite probability %v", p)
	}
	if p < 0 || p > 1 {
		return fmt.Errorf("probability %v outside [0,1]", p)
	}
	return nil
}

// observe records one completed prediction. m may be nil.
func observe(m MetricsInterface, kind string, est Estimate, start time.Time) {
	if m == nil {
		return
	}
	m.MLPredictionsInc(kind)
	m.MLLatencyObserve(kind, time.Since(start).Seconds())
	m.MLPredictionScoresObserve(kind, est.RiskScore)
	if est.Fallback {
		m.MLFallbackUseInc(kind)
	}
}
