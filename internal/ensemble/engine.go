// Package ensemble fuses the tabular and sequence estimates into an ICU admission
// decision: a rounded risk score, a tier, an agreement-based confidence and a summary.
package ensemble

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"icu-risk/internal/features"
	"icu-risk/internal/ml"
)

// Metrics receives one observation per decision.
type Metrics interface {
	DecisionObserve(level string, needsICU bool, score, confidence float64)
}

// Engine is immutable after New and safe for concurrent use.
type Engine struct {
	tabular  ml.Predictor
	sequence ml.Predictor
	cfg      Config
	version  string
	models   *ml.RegistryInfo
	metrics  Metrics
}

type Option func(*Engine)

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithModelVersion(v string) Option {
	return func(e *Engine) { e.version = v }
}

// New builds an engine over two predictors. Only configuration errors are returned.
func New(tabular, sequence ml.Predictor, cfg Config, opts ...Option) (*Engine, error) {
	if tabular == nil || sequence == nil {
		return nil, fmt.Errorf("both predictors are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ensemble config: %w", err)
	}

	e := &Engine{
		tabular:  tabular,
		sequence: sequence,
		cfg:      cfg,
		version:  ml.DefaultModelVersion,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// FromRegistry builds an engine over the registry's predictors and reports its load info.
func FromRegistry(reg *ml.Registry, cfg Config, opts ...Option) (*Engine, error) {
	info := reg.Info()
	opts = append([]Option{WithModelVersion(info.Version)}, opts...)

	e, err := New(reg.Tabular(), reg.Sequence(), cfg, opts...)
	if err != nil {
		return nil, err
	}
	e.models = &info
	return e, nil
}

// Predict never fails: sub-model problems surface as fallback estimates.
func (e *Engine) Predict(v features.Vitals) Decision {
	tab := e.tabular.Predict(v)
	seq := e.sequence.Predict(v)

	fused := e.cfg.TabularWeight*tab.RiskScore + e.cfg.SequenceWeight*seq.RiskScore
	score := round4(clamp01(fused))
	level := e.cfg.Tiers.Level(score)

	d := Decision{
		NeedsICU:      score >= e.cfg.DecisionThreshold,
		RiskScore:     score,
		RiskLevel:     level,
		Confidence:    round4(Confidence(tab.RiskScore, seq.RiskScore)),
		ModelVersion:  e.version,
		Summary:       Summarize(v, score, level),
		TabularScore:  round4(tab.RiskScore),
		SequenceScore: round4(seq.RiskScore),
		TabularModel:  tab.ModelType,
		SequenceModel: seq.ModelType,
		RiskFactors:   tab.RiskFactors,
	}

	if tab.Fallback && seq.Fallback {
		log.Warn().
			Str("tabular_reason", tab.Reason).
			Str("sequence_reason", seq.Reason).
			Msg("Both sub-models on fallback rules")
	}
	log.Debug().
		Float64("risk_score", d.RiskScore).
		Str("risk_level", string(d.RiskLevel)).
		Float64("confidence", d.Confidence).
		Str("xgboost_model", d.TabularModel).
		Str("lstm_model", d.SequenceModel).
		Msg("Ensemble decision")

	if e.metrics != nil {
		e.metrics.DecisionObserve(string(level), d.NeedsICU, d.RiskScore, d.Confidence)
	}
	return d
}

// PredictFields parses a loosely typed field map and predicts. The only error is an
// incomplete input, wrapping features.ErrInputIncomplete, or a malformed value.
func (e *Engine) PredictFields(fields map[string]any) (Decision, error) {
	v, err := features.ParseVitals(fields)
	if err != nil {
		return Decision{}, err
	}
	return e.Predict(v), nil
}

// Info describes the engine configuration and loaded models.
type Info struct {
	Version           string             `json:"version"`
	Weights           map[string]float64 `json:"ensemble_weights"`
	Tiers             Tiers              `json:"risk_thresholds"`
	DecisionThreshold float64            `json:"decision_threshold"`
	Models            *ml.RegistryInfo   `json:"models,omitempty"`
}

func (e *Engine) Info() Info {
	return Info{
		Version: e.version,
		Weights: map[string]float64{
			ml.TagTabular:  e.cfg.TabularWeight,
			ml.TagSequence: e.cfg.SequenceWeight,
		},
		Tiers:             e.cfg.Tiers,
		DecisionThreshold: e.cfg.DecisionThreshold,
		Models:            e.models,
	}
}

// Config returns the validated configuration.
func (e *Engine) Config() Config { return e.cfg }
