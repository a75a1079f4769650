package ensemble

import "math"

// RiskLevel is the discrete tier of a fused score.
type RiskLevel string

const (
	Low      RiskLevel = "Low"
	Medium   RiskLevel = "Medium"
	High     RiskLevel = "High"
	Critical RiskLevel = "Critical"
)

// Level maps a score onto a tier, checking from the top. Boundaries are inclusive.
func (t Tiers) Level(score float64) RiskLevel {
	switch {
	case score >= t.Critical:
		return Critical
	case score >= t.High:
		return High
	case score >= t.Medium:
		return Medium
	default:
		return Low
	}
}

// Decision is the engine output for one patient.
type Decision struct {
	NeedsICU      bool      `json:"needs_icu"`
	RiskScore     float64   `json:"risk_score"`
	RiskLevel     RiskLevel `json:"risk_level"`
	Confidence    float64   `json:"confidence"`
	ModelVersion  string    `json:"model_version"`
	Summary       string    `json:"summary"`
	TabularScore  float64   `json:"xgboost_score"`
	SequenceScore float64   `json:"lstm_score"`
	TabularModel  string    `json:"xgboost_model"`
	SequenceModel string    `json:"lstm_model"`
	RiskFactors   []string  `json:"risk_factors,omitempty"`
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// Confidence measures agreement between the two sub-models: 1 when equal, 0.5 at
// maximum disagreement. It is not a calibrated probability.
func Confidence(tabular, sequence float64) float64 {
	return 1 - 0.5*math.Abs(tabular-sequence)
}
