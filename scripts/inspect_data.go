//go:build ignore

package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"icu-risk/internal/evaluation"
	"icu-risk/internal/storage"
	"icu-risk/internal/thresholds"
)

func main() {
	var (
		dataPath = flag.String("data", "./data", "Data directory path")
		days     = flag.Int("days", 30, "Show threshold runs from the last N days")
	)
	flag.Parse()

	fmt.Printf("Inspecting data in: %s\n", *dataPath)

	store, err := storage.New(*dataPath)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()

	names, err := store.Datasets()
	if err != nil {
		log.Fatalf("Failed to list datasets: %v", err)
	}

	fmt.Println("\nEvaluation datasets:")
	if len(names) == 0 {
		fmt.Println("  (none)")
	}
	loader := evaluation.NewDataLoader(nil, "")
	for _, name := range names {
		ds, err := loader.LoadFromBoltDB(store, name)
		if err != nil {
			fmt.Printf("  %s: %v\n", name, err)
			continue
		}
		fmt.Printf("  %s: %d rows, %d ICU (%.1f%%)\n", name, ds.Len(), ds.Positives(), 100*ds.Prevalence())
	}

	end := time.Now()
	runs, err := store.GetThresholdRuns(end.AddDate(0, 0, -*days), end)
	if err != nil {
		log.Fatalf("Failed to fetch threshold runs: %v", err)
	}

	fmt.Printf("\nThreshold runs (last %d days):\n", *days)
	if len(runs) == 0 {
		fmt.Println("  (none)")
	}
	for _, run := range runs {
		fmt.Printf("  %s  dataset=%s  samples=%d  auc=%.4f\n",
			run.RunAt.Format("2006-01-02 15:04:05"), run.Dataset, run.Set.Samples, run.Set.AUC)
		for _, name := range []string{thresholds.PolicyYouden, thresholds.PolicyHighSensitivity} {
			if p, ok := run.Set.Policy(name); ok {
				fmt.Printf("    %-18s %.4f (sens %.3f, spec %.3f)\n", p.Name, p.Threshold, p.Sensitivity, p.Specificity)
			}
		}
	}
}
