package ml

import (
	"time"

	"github.com/rs/zerolog/log"

	"icu-risk/internal/features"
)

// SequenceModel scores a synthetic 3-step series built from the snapshot. Results are
// non-deterministic unless a deterministic Jitter is supplied.
type SequenceModel struct {
	network SequenceClassifier
	jitter  features.Jitter
	source  string
	metrics MetricsInterface
}

// NewSequenceModel wires a network (nil when no artifact loaded). A nil jitter draws
// from math/rand/v2.
func NewSequenceModel(net SequenceClassifier, j features.Jitter, source string, metrics MetricsInterface) *SequenceModel {
	if j == nil {
		j = features.RandomJitter{}
	}
	return &SequenceModel{network: net, jitter: j, source: source, metrics: metrics}
}

func (s *SequenceModel) Available() bool { return s != nil && s.network != nil }

func (s *SequenceModel) Source() string { return s.source }

// Architecture returns the layer description when the network exposes one.
func (s *SequenceModel) Architecture() string {
	if a, ok := s.network.(interface{ Architecture() string }); ok {
		return a.Architecture()
	}
	return ""
}

// Predict never fails; see SequenceFallback.
func (s *SequenceModel) Predict(v features.Vitals) Estimate {
	start := time.Now()

	if !s.Available() {
		est := SequenceFallback(v, "sequence model not loaded")
		observe(s.metrics, KindSequence, est, start)
		return est
	}

	seq := features.BuildSequence(v, s.jitter)
	p, err := s.network.Predict(seq.Normalized())
	if err == nil {
		err = checkProbability(p)
	}
	if err != nil {
		log.Error().Err(err).Str("model", TagSequence).Msg("Sequence inference failed, using fallback rules")
		if s.metrics != nil {
			s.metrics.MLFailuresInc(KindSequence)
		}
		est := SequenceFallback(v, err.Error())
		observe(s.metrics, KindSequence, est, start)
		return est
	}

	est := Estimate{RiskScore: p, ModelType: TagSequence, Success: true}
	observe(s.metrics, KindSequence, est, start)
	return est
}
