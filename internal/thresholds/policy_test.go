package thresholds

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icu-risk/internal/features"
)

// six samples whose policies all agree on 0.5
var (
	mixedScores = []float64{0.9, 0.8, 0.7, 0.6, 0.4, 0.2}
	mixedLabels = []bool{true, false, true, true, false, false}
)

func TestCompute_PerfectSeparability(t *testing.T) {
	scores := []float64{0.95, 0.1, 0.9, 0.2, 0.8, 0.3}
	labels := []bool{true, false, true, false, true, false}

	set, err := Compute(scores, labels)
	require.NoError(t, err)
	require.Len(t, set.Policies, len(PolicyNames))

	for i, p := range set.Policies {
		assert.Equal(t, PolicyNames[i], p.Name)
		assert.Greater(t, p.Threshold, 0.0, p.Name)
		assert.Less(t, p.Threshold, 1.0, p.Name)
		assert.InDelta(t, 0.55, p.Threshold, 1e-12, p.Name)
		assert.Equal(t, 1.0, p.Sensitivity, p.Name)
		assert.Equal(t, 1.0, p.Specificity, p.Name)
		assert.False(t, p.Fallback, p.Name)
	}
	assert.InDelta(t, 1.0, set.AUC, 1e-12)
	assert.Equal(t, 6, set.Samples)
	assert.Equal(t, 3, set.Positives)
	assert.InDelta(t, 0.5, set.Prevalence, 1e-12)
}

// positives all score exactly 1 and negatives exactly 0
func TestCompute_PerfectSeparabilityAtExtremes(t *testing.T) {
	scores := []float64{1.0, 0.0, 1.0, 0.0, 1.0, 0.0, 0.0}
	labels := []bool{true, false, true, false, true, false, false}

	set, err := Compute(scores, labels)
	require.NoError(t, err)
	require.Len(t, set.Policies, len(PolicyNames))

	for _, name := range PolicyNames {
		p, ok := set.Policy(name)
		require.True(t, ok, name)
		assert.Greater(t, p.Threshold, 0.0, name)
		assert.Less(t, p.Threshold, 1.0, name)
		assert.InDelta(t, 0.5, p.Threshold, 1e-12, name)
		assert.Equal(t, 1.0, p.Sensitivity, name)
		assert.Equal(t, 1.0, p.Specificity, name)
		assert.False(t, p.Fallback, name)
	}
	assert.InDelta(t, 1.0, set.AUC, 1e-12)
}

func TestCompute_MixedScores(t *testing.T) {
	set, err := Compute(mixedScores, mixedLabels)
	require.NoError(t, err)

	for _, name := range PolicyNames {
		p, ok := set.Policy(name)
		require.True(t, ok, name)
		assert.InDelta(t, 0.5, p.Threshold, 1e-12, name)
		assert.InDelta(t, 1.0, p.Sensitivity, 1e-12, name)
		assert.InDelta(t, 2.0/3, p.Specificity, 1e-12, name)
	}

	f1, _ := set.Policy(PolicyF1)
	assert.InDelta(t, 6.0/7, f1.Objective, 1e-12)
	assert.InDelta(t, 0.75, f1.Precision, 1e-12)

	cost, _ := set.Policy(PolicyCostSensitive)
	assert.InDelta(t, 1.0/6, cost.Objective, 1e-12)

	assert.InDelta(t, 7.0/9, set.AUC, 1e-12)
}

func TestCompute_TiesKeepHighestCut(t *testing.T) {
	// Youden is 0.5 at both 0.7 and 0.3.
	set, err := Compute([]float64{0.8, 0.6, 0.4, 0.2}, []bool{true, false, true, false})
	require.NoError(t, err)

	youden, ok := set.Policy(PolicyYouden)
	require.True(t, ok)
	assert.InDelta(t, 0.7, youden.Threshold, 1e-12)
	assert.InDelta(t, 0.5, youden.Objective, 1e-12)
}

func TestCompute_TiedScores(t *testing.T) {
	set, err := Compute([]float64{0.5, 0.5, 0.1, 0.9}, []bool{true, false, false, true})
	require.NoError(t, err)

	assert.InDelta(t, 0.875, set.AUC, 1e-12)
	require.Len(t, set.ROC, 4)
	assert.Equal(t, ROCPoint{Threshold: set.ROC[0].Threshold, FPR: 0, TPR: 0}, set.ROC[0])
	assert.Greater(t, set.ROC[0].Threshold, 0.9)
	assert.InDelta(t, 0.1, set.ROC[3].Threshold, 1e-12)
	assert.Equal(t, 1.0, set.ROC[3].FPR)
}

func TestCompute_Errors(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		labels []bool
		want   error
	}{
		{"empty", nil, nil, ErrEmptyInput},
		{"length mismatch", []float64{0.1, 0.2}, []bool{true}, ErrLengthMismatch},
		{"all positive", []float64{0.1, 0.2}, []bool{true, true}, ErrSingleClass},
		{"all negative", []float64{0.1, 0.2}, []bool{false, false}, ErrSingleClass},
		{"nan score", []float64{0.1, math.NaN()}, []bool{true, false}, ErrNonFinite},
		{"infinite score", []float64{math.Inf(-1), 0.4}, []bool{true, false}, ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.scores, tt.labels)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEvaluateAt(t *testing.T) {
	m, err := EvaluateAt(mixedScores, mixedLabels, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 3, m.TP)
	assert.Equal(t, 1, m.FP)
	assert.Equal(t, 2, m.TN)
	assert.Equal(t, 0, m.FN)
	assert.InDelta(t, 1.0, m.Sensitivity, 1e-12)
	assert.InDelta(t, 2.0/3, m.Specificity, 1e-12)
	assert.InDelta(t, 0.75, m.Precision, 1e-12)
	assert.InDelta(t, 1.0, m.NPV, 1e-12)
	assert.InDelta(t, 5.0/6, m.Accuracy, 1e-12)
	assert.InDelta(t, 0.0, m.FNR, 1e-12)
	assert.InDelta(t, 1.0/3, m.FPR, 1e-12)

	// a score equal to the cut is positive
	m, err = EvaluateAt([]float64{0.4}, []bool{true}, 0.4)
	require.NoError(t, err)
	assert.Equal(t, 1, m.TP)
}

func TestHighSensitivity_Fallback(t *testing.T) {
	r := highSensitivity(mixedScores, mixedLabels, []Metrics{{Sensitivity: 0.5}, {Sensitivity: 0.8}})

	assert.True(t, r.Fallback)
	assert.Equal(t, SensitivityFallback, r.Threshold)
	assert.NotEmpty(t, r.Note)
	// at 0.3 only the 0.2 negative is below the cut
	assert.InDelta(t, 1.0, r.Sensitivity, 1e-12)
	assert.InDelta(t, 1.0/3, r.Specificity, 1e-12)
}

type stubScorer struct {
	fail int
}

func (s stubScorer) ScoreVector(v features.Vector) (float64, error) {
	if x, _ := v.Get("x"); int(x) == s.fail {
		return 0, errors.New("bad row")
	}
	x, _ := v.Get("x")
	return x / 10, nil
}

func TestEvaluate(t *testing.T) {
	var rows []features.Vector
	for _, x := range []float64{9, 1, 8, 2} {
		v, err := features.NewVector([]string{"x"}, []float64{x})
		require.NoError(t, err)
		rows = append(rows, v)
	}
	labels := []bool{true, false, true, false}

	set, err := Evaluate(stubScorer{fail: -1}, rows, labels)
	require.NoError(t, err)
	f1, _ := set.Policy(PolicyF1)
	assert.InDelta(t, 0.5, f1.Threshold, 1e-12)

	_, err = Evaluate(stubScorer{fail: 8}, rows, labels)
	assert.ErrorContains(t, err, "score row 2")

	_, err = Evaluate(stubScorer{fail: -1}, rows, labels[:3])
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestSet_SaveLoad(t *testing.T) {
	set, err := Compute(mixedScores, mixedLabels)
	require.NoError(t, err)
	dir := t.TempDir()

	for _, name := range []string{"thresholds.yaml", "thresholds.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, set.Save(path))

			loaded, err := LoadSet(path)
			require.NoError(t, err)
			assert.Equal(t, set.Policies, loaded.Policies)
			assert.Equal(t, set.Samples, loaded.Samples)
			assert.True(t, set.GeneratedAt.Equal(loaded.GeneratedAt))
		})
	}

	_, err = LoadSet(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
