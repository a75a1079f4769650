package ml

import (
	"errors"
	"math"
	"sync"
	"testing"

	"icu-risk/internal/features"
)

type stubNetwork struct {
	mu   sync.Mutex
	p    float64
	err  error
	seen [][][]float64
}

func (s *stubNetwork) Predict(seq [][]float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, seq)
	return s.p, s.err
}

func TestSequenceFallback_Rules(t *testing.T) {
	tests := []struct {
		name   string
		vitals features.Vitals
		want   float64
	}{
		{"sample patient", samplePatient(), 0},
		{"all severe", features.Vitals{HeartRate: 130, SystolicBP: 85, OxygenSaturation: 88, Temperature: 39.5, RespiratoryRate: 32}, 1.0},
		{"moderate", features.Vitals{HeartRate: 105, SystolicBP: 145, OxygenSaturation: 93, Temperature: 37, RespiratoryRate: 25}, 0.1 + 0.1 + 0.15 + 0.08},
		{"bradycardia and hypotension", features.Vitals{HeartRate: 45, SystolicBP: 95, OxygenSaturation: 97, Temperature: 34.5, RespiratoryRate: 11}, 0.2 + 0.1 + 0.15 + 0.08},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := SequenceFallback(tt.vitals, "")
			if math.Abs(est.RiskScore-tt.want) > 1e-9 {
				t.Errorf("score = %v, want %v", est.RiskScore, tt.want)
			}
			if est.RiskScore > 1 {
				t.Error("score must be capped at 1")
			}
			if est.ModelType != TagSequenceFallback || !est.Success || !est.Fallback {
				t.Errorf("unexpected tags %+v", est)
			}
			if est.Prediction != nil {
				t.Error("sequence estimates carry no label")
			}
		})
	}
}

func TestSequenceModel_FeedsNormalizedSeries(t *testing.T) {
	net := &stubNetwork{p: 0.42}
	metrics := &MockMetrics{}
	model := NewSequenceModel(net, features.FixedJitter{F: 0.5}, "lstm.json", metrics)

	est := model.Predict(samplePatient())

	if est.ModelType != TagSequence || est.RiskScore != 0.42 || est.Fallback {
		t.Fatalf("unexpected estimate %+v", est)
	}
	if len(net.seen) != 1 || len(net.seen[0]) != features.SequenceSteps {
		t.Fatalf("network saw %v", net.seen)
	}

	last := net.seen[0][2]
	if math.Abs(last[0]-(-0.5)) > 1e-12 {
		t.Errorf("normalized HR = %v, want -0.5", last[0])
	}
	if math.Abs(last[3]-(-2.5/3)) > 1e-12 {
		t.Errorf("normalized SaO2 = %v, want %v", last[3], -2.5/3)
	}
	if preds, _, _ := metrics.Counts(KindSequence); preds != 1 {
		t.Errorf("expected 1 prediction, got %d", preds)
	}
}

func TestSequenceModel_FailuresFallBack(t *testing.T) {
	tests := []struct {
		name string
		net  *stubNetwork
	}{
		{"inference error", &stubNetwork{err: errors.New("shape mismatch")}},
		{"infinite output", &stubNetwork{p: math.Inf(1)}},
		{"negative output", &stubNetwork{p: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &MockMetrics{}
			model := NewSequenceModel(tt.net, nil, "lstm.json", metrics)

			est := model.Predict(samplePatient())

			if est.ModelType != TagSequenceFallback || !est.Success || est.Reason == "" {
				t.Errorf("expected fallback with reason, got %+v", est)
			}
			_, failures, fallbacks := metrics.Counts(KindSequence)
			if failures != 1 || fallbacks != 1 {
				t.Errorf("failures=%d fallbacks=%d, want 1 and 1", failures, fallbacks)
			}
		})
	}
}

func TestSequenceModel_NotLoaded(t *testing.T) {
	model := NewSequenceModel(nil, nil, "", nil)
	if model.Available() {
		t.Error("model without network must not report available")
	}
	if model.Architecture() != "" {
		t.Error("unexpected architecture for missing network")
	}
	est := model.Predict(criticalPatient())
	if est.ModelType != TagSequenceFallback || math.Abs(est.RiskScore-1.0) > 1e-9 {
		t.Errorf("unexpected estimate %+v", est)
	}
}
