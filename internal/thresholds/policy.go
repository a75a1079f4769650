// Package thresholds derives decision cut-points from labelled scores under several
// clinical policies and persists them as a threshold set.
package thresholds

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"icu-risk/internal/features"
)

const (
	PolicyF1              = "F1-Optimized"
	PolicyYouden          = "Youden-Index"
	PolicyBalanced        = "Balanced"
	PolicyHighSensitivity = "High-Sensitivity"
	PolicyCostSensitive   = "Cost-Sensitive"
)

// PolicyNames lists the policies in report order.
var PolicyNames = []string{PolicyF1, PolicyYouden, PolicyBalanced, PolicyHighSensitivity, PolicyCostSensitive}

const (
	// MinSensitivity is the recall floor of the High-Sensitivity policy.
	MinSensitivity = 0.9
	// SensitivityFallback is used when no cut-point reaches MinSensitivity.
	SensitivityFallback = 0.3
	// FalseNegativeCost weighs a missed ICU case against one unnecessary admission.
	FalseNegativeCost = 5.0
)

// PolicyResult is the cut-point chosen by one policy with the metrics realised there.
type PolicyResult struct {
	Name        string  `json:"name" yaml:"name"`
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity"`
	Specificity float64 `json:"specificity" yaml:"specificity"`
	Precision   float64 `json:"precision" yaml:"precision"`
	F1          float64 `json:"f1" yaml:"f1"`
	Objective   float64 `json:"objective" yaml:"objective"`
	Fallback    bool    `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Note        string  `json:"note,omitempty" yaml:"note,omitempty"`
}

// ROCPoint is one point of the receiver operating characteristic.
type ROCPoint struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	FPR       float64 `json:"fpr" yaml:"fpr"`
	TPR       float64 `json:"tpr" yaml:"tpr"`
}

// Set is the batch artifact produced by Compute.
type Set struct {
	GeneratedAt time.Time      `json:"generated_at" yaml:"generated_at"`
	Samples     int            `json:"samples" yaml:"samples"`
	Positives   int            `json:"positives" yaml:"positives"`
	Prevalence  float64        `json:"prevalence" yaml:"prevalence"`
	AUC         float64        `json:"auc" yaml:"auc"`
	Policies    []PolicyResult `json:"policies" yaml:"policies"`
	ROC         []ROCPoint     `json:"roc,omitempty" yaml:"-"`
}

// Policy returns the named policy result.
func (s *Set) Policy(name string) (PolicyResult, bool) {
	for _, p := range s.Policies {
		if p.Name == name {
			return p, true
		}
	}
	return PolicyResult{}, false
}

// Scorer scores one unscaled feature vector without falling back.
type Scorer interface {
	ScoreVector(features.Vector) (float64, error)
}

// Evaluate scores every row with model and computes the threshold set.
func Evaluate(model Scorer, rows []features.Vector, labels []bool) (*Set, error) {
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrLengthMismatch, len(rows), len(labels))
	}
	scores := make([]float64, len(rows))
	for i, row := range rows {
		s, err := model.ScoreVector(row)
		if err != nil {
			return nil, fmt.Errorf("score row %d: %w", i, err)
		}
		scores[i] = s
	}
	return Compute(scores, labels)
}

// candidate is one cut-point of the sweep with cumulative counts above it.
type candidate struct {
	cut    float64
	tp, fp int
}

// Compute evaluates every candidate cut-point and selects one per policy. Candidates
// are a point just above the highest score (nothing positive), the midpoint between
// each pair of consecutive distinct scores, and the lowest score (everything positive).
// When several candidates score equally the highest cut-point wins.
func Compute(scores []float64, labels []bool) (*Set, error) {
	if err := validate(scores, labels); err != nil {
		return nil, err
	}

	n := len(scores)
	pos := 0
	for _, l := range labels {
		if l {
			pos++
		}
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return nil, ErrSingleClass
	}
	prevalence := float64(pos) / float64(n)

	cands := sweep(scores, labels)

	roc := make([]ROCPoint, len(cands))
	metrics := make([]Metrics, len(cands))
	for i, c := range cands {
		metrics[i] = confusion(c.cut, c.tp, c.fp, neg-c.fp, pos-c.tp)
		roc[i] = ROCPoint{Threshold: c.cut, FPR: metrics[i].FPR, TPR: metrics[i].Sensitivity}
	}

	set := &Set{
		GeneratedAt: time.Now().UTC(),
		Samples:     n,
		Positives:   pos,
		Prevalence:  prevalence,
		AUC:         auc(roc),
		ROC:         roc,
	}

	iF1 := argBest(metrics, func(m Metrics) float64 { return m.F1 })
	iYouden := argBest(metrics, youden)
	iBalanced := argBest(metrics, func(m Metrics) float64 { return -distance(m) })
	iCost := argBest(metrics, func(m Metrics) float64 { return -cost(m, prevalence) })

	set.Policies = append(set.Policies,
		result(PolicyF1, metrics[iF1], metrics[iF1].F1),
		result(PolicyYouden, metrics[iYouden], youden(metrics[iYouden])),
		result(PolicyBalanced, metrics[iBalanced], distance(metrics[iBalanced])),
		highSensitivity(scores, labels, metrics),
		result(PolicyCostSensitive, metrics[iCost], cost(metrics[iCost], prevalence)),
	)

	log.Debug().
		Int("samples", n).
		Int("positives", pos).
		Int("candidates", len(cands)).
		Float64("auc", set.AUC).
		Msg("Threshold policies computed")
	return set, nil
}

// sweep returns the candidates in descending cut order with cumulative counts.
func sweep(scores []float64, labels []bool) []candidate {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	maxScore := scores[idx[0]]
	cands := []candidate{{cut: math.Nextafter(maxScore, math.Inf(1))}}

	var tp, fp int
	for k := 0; k < len(idx); {
		s := scores[idx[k]]
		for k < len(idx) && scores[idx[k]] == s {
			if labels[idx[k]] {
				tp++
			} else {
				fp++
			}
			k++
		}

		cut := s
		if k < len(idx) {
			next := scores[idx[k]]
			if mid := s/2 + next/2; mid > next && mid <= s {
				cut = mid
			}
		}
		cands = append(cands, candidate{cut: cut, tp: tp, fp: fp})
	}
	return cands
}

// argBest returns the index of the first (highest cut) candidate maximizing score.
func argBest(metrics []Metrics, score func(Metrics) float64) int {
	best := 0
	bestVal := score(metrics[0])
	for i := 1; i < len(metrics); i++ {
		if v := score(metrics[i]); v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

func youden(m Metrics) float64 {
	return m.Sensitivity - m.FPR
}

func distance(m Metrics) float64 {
	return math.Hypot(1-m.Sensitivity, m.FPR)
}

func cost(m Metrics, prevalence float64) float64 {
	return FalseNegativeCost*(1-m.Sensitivity)*prevalence + m.FPR*(1-prevalence)
}

func result(name string, m Metrics, objective float64) PolicyResult {
	return PolicyResult{
		Name:        name,
		Threshold:   m.Threshold,
		Sensitivity: m.Sensitivity,
		Specificity: m.Specificity,
		Precision:   m.Precision,
		F1:          m.F1,
		Objective:   objective,
	}
}

// highSensitivity picks the most specific cut-point with recall >= MinSensitivity,
// preferring higher recall on equal specificity. Without such a cut it falls back to
// SensitivityFallback, which is still evaluated.
func highSensitivity(scores []float64, labels []bool, metrics []Metrics) PolicyResult {
	best := -1
	for i, m := range metrics {
		if m.Sensitivity < MinSensitivity {
			continue
		}
		if best < 0 ||
			m.Specificity > metrics[best].Specificity ||
			(m.Specificity == metrics[best].Specificity && m.Sensitivity > metrics[best].Sensitivity) {
			best = i
		}
	}

	if best >= 0 {
		r := result(PolicyHighSensitivity, metrics[best], metrics[best].Specificity)
		r.Note = "Prioritizes catching ICU cases"
		return r
	}

	// validated by Compute, cannot fail
	m, _ := EvaluateAt(scores, labels, SensitivityFallback)
	r := result(PolicyHighSensitivity, m, m.Specificity)
	r.Fallback = true
	r.Note = fmt.Sprintf("No cut-point reaches sensitivity %.2f; using %.2f", MinSensitivity, SensitivityFallback)
	return r
}

// auc integrates the ROC curve with the trapezoid rule. Points run from (0,0) to (1,1).
func auc(roc []ROCPoint) float64 {
	var area float64
	for i := 1; i < len(roc); i++ {
		area += (roc[i].FPR - roc[i-1].FPR) * (roc[i].TPR + roc[i-1].TPR) / 2
	}
	return area
}
