package evaluation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"icu-risk/internal/thresholds"
)

// Result is one threshold analysis run: the computed policies plus the scores they
// were derived from.
type Result struct {
	Dataset     string
	ModelSource string
	Set         *thresholds.Set
	Scores      []float64
	Labels      []bool
	Columns     []ColumnStats
	Importance  []FeatureImportance
}

// PolicyDetail is the full confusion matrix at one policy's cut-point.
type PolicyDetail struct {
	Policy  string             `json:"policy"`
	Metrics thresholds.Metrics `json:"metrics"`
}

// Details evaluates every policy threshold against the scores.
func (r *Result) Details() ([]PolicyDetail, error) {
	out := make([]PolicyDetail, 0, len(r.Set.Policies))
	for _, p := range r.Set.Policies {
		m, err := thresholds.EvaluateAt(r.Scores, r.Labels, p.Threshold)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", p.Name, err)
		}
		out = append(out, PolicyDetail{Policy: p.Name, Metrics: m})
	}
	return out, nil
}

// Reporter writes threshold analysis reports
type Reporter struct {
	result     *Result
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(result *Result, outputPath string) *Reporter {
	return &Reporter{
		result:     result,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	details, err := r.result.Details()
	if err != nil {
		return err
	}

	if err := r.generateSummary(details); err != nil {
		return err
	}

	if err := r.generateThresholdFile(); err != nil {
		return err
	}

	if err := r.generateJSONReport(details); err != nil {
		return err
	}

	if err := r.generateROCCurve(); err != nil {
		return err
	}

	return nil
}

// generateSummary writes a human-readable summary
func (r *Reporter) generateSummary(details []PolicyDetail) error {
	summaryPath := filepath.Join(r.outputPath, "threshold_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file, details)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer, details []PolicyDetail) {
	set := r.result.Set

	fmt.Fprintf(w, "THRESHOLD ANALYSIS SUMMARY\n")
	fmt.Fprintf(w, "==========================\n\n")

	fmt.Fprintf(w, "Generated: %s\n", set.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Dataset: %s\n", r.result.Dataset)
	if r.result.ModelSource != "" {
		fmt.Fprintf(w, "Model: %s\n", r.result.ModelSource)
	}
	fmt.Fprintf(w, "Samples: %d (%d ICU, prevalence %.2f%%)\n", set.Samples, set.Positives, set.Prevalence*100)
	fmt.Fprintf(w, "ROC AUC: %.4f\n\n", set.AUC)

	fmt.Fprintf(w, "POLICIES\n")
	fmt.Fprintf(w, "--------\n")
	fmt.Fprintf(w, "%-18s %9s %11s %11s %9s %7s\n", "Policy", "Threshold", "Sensitivity", "Specificity", "Precision", "F1")
	for _, p := range set.Policies {
		fmt.Fprintf(w, "%-18s %9.4f %10.2f%% %10.2f%% %8.2f%% %7.4f\n",
			p.Name, p.Threshold, p.Sensitivity*100, p.Specificity*100, p.Precision*100, p.F1)
	}
	for _, p := range set.Policies {
		if p.Note != "" {
			fmt.Fprintf(w, "  %s: %s\n", p.Name, p.Note)
		}
	}

	fmt.Fprintf(w, "\nCONFUSION AT EACH THRESHOLD\n")
	fmt.Fprintf(w, "---------------------------\n")
	for _, d := range details {
		m := d.Metrics
		fmt.Fprintf(w, "%s: TP=%d FP=%d TN=%d FN=%d NPV=%.2f%% Accuracy=%.2f%% FNR=%.2f%% FPR=%.2f%%\n",
			d.Policy, m.TP, m.FP, m.TN, m.FN, m.NPV*100, m.Accuracy*100, m.FNR*100, m.FPR*100)
	}

	if len(r.result.Columns) > 0 {
		fmt.Fprintf(w, "\nFEATURES\n")
		fmt.Fprintf(w, "--------\n")
		for _, c := range r.result.Columns {
			fmt.Fprintf(w, "%-15s mean %8.2f  sd %7.2f  range [%.2f, %.2f]\n", c.Name, c.Mean, c.StdDev, c.Min, c.Max)
		}
	}

	if len(r.result.Importance) > 0 {
		fmt.Fprintf(w, "\nPERMUTATION IMPORTANCE (AUC drop)\n")
		fmt.Fprintf(w, "---------------------------------\n")
		for _, fi := range r.result.Importance {
			fmt.Fprintf(w, "%-15s %+.4f  (auc %.4f, mean score shift %.4f)\n", fi.Name, fi.Importance, fi.PermutedAUC, fi.MeanAbsShift)
		}
	}
}

// generateThresholdFile writes the set in the form the service configuration reads.
func (r *Reporter) generateThresholdFile() error {
	path := filepath.Join(r.outputPath, "thresholds.yaml")
	if err := r.result.Set.Save(path); err != nil {
		return fmt.Errorf("failed to write threshold file: %w", err)
	}

	log.Info().Str("file", path).Msg("Threshold file generated")
	return nil
}

// generateJSONReport writes a JSON report with all data
func (r *Reporter) generateJSONReport(details []PolicyDetail) error {
	jsonPath := filepath.Join(r.outputPath, "threshold_report.json")

	report := map[string]interface{}{
		"dataset":      r.result.Dataset,
		"model_source": r.result.ModelSource,
		"thresholds":   r.result.Set,
		"details":      details,
		"features":     r.result.Columns,
		"importance":   r.result.Importance,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// generateROCCurve writes the ROC points for plotting
func (r *Reporter) generateROCCurve() error {
	csvPath := filepath.Join(r.outputPath, "roc_curve.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create ROC curve file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"threshold", "fpr", "tpr"}); err != nil {
		return err
	}
	for _, p := range r.result.Set.ROC {
		record := []string{
			strconv.FormatFloat(p.Threshold, 'g', -1, 64),
			strconv.FormatFloat(p.FPR, 'f', 6, 64),
			strconv.FormatFloat(p.TPR, 'f', 6, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write ROC curve: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("ROC curve generated")
	return nil
}

// PrintSummary prints the policy table to stdout
func (r *Reporter) PrintSummary() {
	set := r.result.Set
	fmt.Println("\n=== THRESHOLD ANALYSIS ===")
	fmt.Printf("Samples: %d (%d ICU)\n", set.Samples, set.Positives)
	fmt.Printf("ROC AUC: %.4f\n", set.AUC)
	for _, p := range set.Policies {
		fmt.Printf("%-18s threshold %.4f  sensitivity %.2f%%  specificity %.2f%%\n",
			p.Name, p.Threshold, p.Sensitivity*100, p.Specificity*100)
	}
	fmt.Println("==========================")
}
