package ml

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"icu-risk/internal/features"
)

// TabularModel scores the normalized snapshot with a tabular classifier and falls back
// to TabularFallback whenever the classifier is absent or inference fails.
type TabularModel struct {
	classifier TabularClassifier
	normalizer *features.Normalizer
	source     string
	metrics    MetricsInterface
}

// NewTabularModel wires a classifier (nil when no artifact loaded) to a normalizer.
// A nil normalizer uses the canonical columns without scaling.
func NewTabularModel(clf TabularClassifier, n *features.Normalizer, source string, metrics MetricsInterface) *TabularModel {
	if n == nil {
		n = features.NewNormalizer(nil, nil)
	}
	return &TabularModel{classifier: clf, normalizer: n, source: source, metrics: metrics}
}

// Available reports whether a classifier artifact is loaded.
func (t *TabularModel) Available() bool { return t != nil && t.classifier != nil }

// Source is the artifact path the classifier was loaded from.
func (t *TabularModel) Source() string { return t.source }

// Columns returns the normalized vector column order.
func (t *TabularModel) Columns() []string { return t.normalizer.Columns() }

// Predict never fails; see TabularFallback.
func (t *TabularModel) Predict(v features.Vitals) Estimate {
	start := time.Now()

	if !t.Available() {
		est := TabularFallback(v, "tabular model not loaded")
		observe(t.metrics, KindTabular, est, start)
		return est
	}

	vec, err := t.normalizer.Normalize(v)
	var p float64
	if err == nil {
		p, err = t.score(vec)
	}
	if err != nil {
		log.Error().Err(err).Str("model", TagTabular).Msg("Tabular inference failed, using fallback rules")
		if t.metrics != nil {
			t.metrics.MLFailuresInc(KindTabular)
		}
		est := TabularFallback(v, err.Error())
		observe(t.metrics, KindTabular, est, start)
		return est
	}

	est := Estimate{
		RiskScore:  p,
		ModelType:  TagTabular,
		Success:    true,
		Prediction: label(p >= 0.5),
	}
	observe(t.metrics, KindTabular, est, start)

	log.Debug().Float64("risk_score", p).Str("model", TagTabular).Msg("Tabular prediction")
	return est
}

// ScoreVector scores an unscaled feature vector without falling back. The vector is
// reconciled with the normalizer's columns first: extra columns are dropped and missing
// ones take their defaults, as in Predict.
func (t *TabularModel) ScoreVector(vec features.Vector) (float64, error) {
	if !t.Available() {
		return 0, ErrModelUnavailable
	}

	full := vec.Reconcile(t.normalizer.Columns())
	scaled, err := t.normalizer.Scale(full)
	if err != nil {
		return 0, err
	}
	return t.score(scaled)
}

// score projects a scaled vector onto the classifier's inputs and predicts.
func (t *TabularModel) score(scaled features.Vector) (float64, error) {
	row := scaled
	if names := t.classifier.FeatureNames(); len(names) > 0 {
		var err error
		if row, err = scaled.Select(names); err != nil {
			return 0, err
		}
	}

	p, err := t.classifier.PredictProba(row.Values())
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	if err := checkProbability(p); err != nil {
		return 0, err
	}
	return p, nil
}
