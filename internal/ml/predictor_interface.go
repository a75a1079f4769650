// Package ml wraps the two ICU risk classifiers behind predictors that never fail.
// It holds the Go-native runtimes for the persisted artifacts (a gradient-boosted
// tree ensemble and a stacked LSTM), the rule-based fallbacks used when an artifact
// is missing or inference fails, and the immutable Registry that loads everything once.
package ml

import "icu-risk/internal/features"

// Predictor produces a risk estimate for one vitals snapshot.
// Implementations must be safe for concurrent use and must always return a usable
// estimate; failures are reported through Estimate.Fallback and Estimate.Reason.
type Predictor interface {
	Predict(v features.Vitals) Estimate
}

// TabularClassifier is a loaded tabular artifact.
type TabularClassifier interface {
	// FeatureNames returns the input columns in the order PredictProba expects.
	// An empty result means the classifier takes the full normalized vector.
	FeatureNames() []string

	// PredictProba returns the positive-class probability for one row.
	PredictProba(row []float64) (float64, error)
}

// SequenceClassifier is a loaded sequence artifact taking a [steps][channels] tensor.
type SequenceClassifier interface {
	Predict(seq [][]float64) (float64, error)
}
