package thresholds

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyInput     = errors.New("no samples")
	ErrLengthMismatch = errors.New("scores and labels differ in length")
	ErrSingleClass    = errors.New("labels contain a single class")
	ErrNonFinite      = errors.New("non-finite score")
)

// Metrics are confusion-matrix statistics at one cut-point. A score is predicted
// positive when score >= Threshold.
type Metrics struct {
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	Sensitivity float64 `json:"sensitivity" yaml:"sensitivity"`
	Specificity float64 `json:"specificity" yaml:"specificity"`
	Precision   float64 `json:"precision" yaml:"precision"`
	NPV         float64 `json:"npv" yaml:"npv"`
	Accuracy    float64 `json:"accuracy" yaml:"accuracy"`
	F1          float64 `json:"f1" yaml:"f1"`
	FNR         float64 `json:"fnr" yaml:"fnr"`
	FPR         float64 `json:"fpr" yaml:"fpr"`
	TP          int     `json:"tp" yaml:"tp"`
	FP          int     `json:"fp" yaml:"fp"`
	TN          int     `json:"tn" yaml:"tn"`
	FN          int     `json:"fn" yaml:"fn"`
}

// EvaluateAt computes the confusion metrics of scores against labels at cut.
func EvaluateAt(scores []float64, labels []bool, cut float64) (Metrics, error) {
	if err := validate(scores, labels); err != nil {
		return Metrics{}, err
	}

	var tp, fp, tn, fn int
	for i, s := range scores {
		pred := s >= cut
		switch {
		case pred && labels[i]:
			tp++
		case pred:
			fp++
		case labels[i]:
			fn++
		default:
			tn++
		}
	}
	return confusion(cut, tp, fp, tn, fn), nil
}

func confusion(cut float64, tp, fp, tn, fn int) Metrics {
	m := Metrics{
		Threshold:   cut,
		Sensitivity: ratio(tp, tp+fn),
		Specificity: ratio(tn, tn+fp),
		Precision:   ratio(tp, tp+fp),
		NPV:         ratio(tn, tn+fn),
		Accuracy:    ratio(tp+tn, tp+tn+fp+fn),
		FNR:         ratio(fn, tp+fn),
		FPR:         ratio(fp, tn+fp),
		TP:          tp,
		FP:          fp,
		TN:          tn,
		FN:          fn,
	}
	if m.Precision+m.Sensitivity > 0 {
		m.F1 = 2 * m.Precision * m.Sensitivity / (m.Precision + m.Sensitivity)
	}
	return m
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func validate(scores []float64, labels []bool) error {
	if len(scores) == 0 {
		return ErrEmptyInput
	}
	if len(scores) != len(labels) {
		return fmt.Errorf("%w: %d scores, %d labels", ErrLengthMismatch, len(scores), len(labels))
	}
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w at index %d", ErrNonFinite, i)
		}
	}
	return nil
}
