package evaluation

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icu-risk/internal/thresholds"
)

func testResult(t *testing.T) *Result {
	t.Helper()
	scores := []float64{0.95, 0.85, 0.7, 0.65, 0.4, 0.35, 0.2, 0.1}
	labels := []bool{true, true, false, true, false, true, false, false}
	set, err := thresholds.Compute(scores, labels)
	require.NoError(t, err)
	return &Result{
		Dataset:     "cohort",
		ModelSource: "primary",
		Set:         set,
		Scores:      scores,
		Labels:      labels,
		Columns:     []ColumnStats{{Name: "HR_first", Mean: 90, StdDev: 12, Min: 60, Max: 140}},
		Importance:  []FeatureImportance{{Name: "SaO2_first", BaselineAUC: set.AUC, PermutedAUC: set.AUC - 0.12, Importance: 0.12}},
	}
}

func TestResultDetails(t *testing.T) {
	res := testResult(t)

	details, err := res.Details()
	require.NoError(t, err)
	require.Len(t, details, len(thresholds.PolicyNames))

	for i, d := range details {
		p := res.Set.Policies[i]
		assert.Equal(t, p.Name, d.Policy)
		assert.Equal(t, p.Threshold, d.Metrics.Threshold)
		assert.InDelta(t, p.Sensitivity, d.Metrics.Sensitivity, 1e-12, d.Policy)
		assert.Equal(t, len(res.Scores), d.Metrics.TP+d.Metrics.FP+d.Metrics.TN+d.Metrics.FN)
	}
}

func TestGenerateReport(t *testing.T) {
	res := testResult(t)
	out := filepath.Join(t.TempDir(), "reports", "run1")

	require.NoError(t, NewReporter(res, out).GenerateReport())

	for _, name := range []string{"threshold_summary.txt", "thresholds.yaml", "threshold_report.json", "roc_curve.csv"} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	// the threshold file is what the service loads
	set, err := thresholds.LoadSet(filepath.Join(out, "thresholds.yaml"))
	require.NoError(t, err)
	assert.Equal(t, res.Set.Policies, set.Policies)

	data, err := os.ReadFile(filepath.Join(out, "threshold_report.json"))
	require.NoError(t, err)
	var report struct {
		Dataset string         `json:"dataset"`
		Details []PolicyDetail `json:"details"`
		Set     thresholds.Set `json:"thresholds"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, "cohort", report.Dataset)
	assert.Len(t, report.Details, len(thresholds.PolicyNames))
	assert.InDelta(t, res.Set.AUC, report.Set.AUC, 1e-12)

	f, err := os.Open(filepath.Join(out, "roc_curve.csv"))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"threshold", "fpr", "tpr"}, records[0])
	assert.Len(t, records, len(res.Set.ROC)+1)

	summary, err := os.ReadFile(filepath.Join(out, "threshold_summary.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Dataset: cohort")
	assert.Contains(t, string(summary), thresholds.PolicyHighSensitivity)
	assert.Contains(t, string(summary), "HR_first")
	assert.Contains(t, string(summary), "SaO2_first      +0.1200")
}

func TestWriteSummary_OmitsEmptySections(t *testing.T) {
	res := testResult(t)
	res.ModelSource = ""
	res.Columns = nil
	res.Importance = nil

	details, err := res.Details()
	require.NoError(t, err)

	var buf bytes.Buffer
	NewReporter(res, "").writeSummary(&buf, details)
	assert.NotContains(t, buf.String(), "Model:")
	assert.NotContains(t, buf.String(), "FEATURES")
	assert.NotContains(t, buf.String(), "PERMUTATION IMPORTANCE")
	assert.Contains(t, buf.String(), "CONFUSION AT EACH THRESHOLD")
}

func TestGenerateReport_DetailsError(t *testing.T) {
	res := testResult(t)
	res.Labels = res.Labels[:2]

	err := NewReporter(res, t.TempDir()).GenerateReport()
	assert.ErrorIs(t, err, thresholds.ErrLengthMismatch)
}
