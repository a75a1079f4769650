//go:build ignore

package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"icu-risk/internal/evaluation"
	"icu-risk/internal/features"
)

// patient is one synthetic admission.
type patient struct {
	vitals features.Vitals
	saps   float64
	icu    bool
}

func main() {
	var (
		outputPath  = flag.String("output", "data/eval_cohort.csv", "Output file (.csv or .json)")
		rows        = flag.Int("rows", 2000, "Number of patients to generate")
		prevalence  = flag.Float64("prevalence", 0.14, "Approximate share of ICU admissions")
		missingRate = flag.Float64("missing", 0.05, "Share of optional CSV cells left empty")
		seed        = flag.Uint64("seed", evaluation.DefaultSeed, "Random seed")
	)
	flag.Parse()

	fmt.Printf("Generating evaluation cohort...\n")
	fmt.Printf("  Rows: %d\n", *rows)
	fmt.Printf("  Target prevalence: %.2f\n", *prevalence)
	fmt.Printf("  Output: %s\n", *outputPath)

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	patients := make([]patient, *rows)
	positives := 0
	for i := range patients {
		patients[i] = generatePatient(rng, *prevalence)
		if patients[i].icu {
			positives++
		}
	}

	var err error
	if strings.HasSuffix(*outputPath, ".json") {
		err = writeJSON(*outputPath, patients)
	} else {
		err = writeCSV(*outputPath, patients, rng, *missingRate)
	}
	if err != nil {
		log.Fatalf("Failed to write cohort: %v", err)
	}

	fmt.Printf("✓ Generated %d patients (%d ICU, %.1f%%)\n", len(patients), positives, 100*float64(positives)/float64(len(patients)))
}

// generatePatient draws vitals whose derangement grows with a latent severity, then
// labels the patient through a logistic link on that severity.
func generatePatient(rng *rand.Rand, prevalence float64) patient {
	severity := rng.NormFloat64()
	age := clamp(62+17*rng.NormFloat64()+4*severity, 18, 95)

	gender := "Female"
	if rng.Float64() < 0.56 {
		gender = "Male"
	}

	gcs := math.Round(clamp(14.5-1.8*math.Max(severity, 0)+0.6*rng.NormFloat64(), 3, 15))
	lactate := clamp(1.6+0.9*math.Max(severity, 0)+0.5*rng.NormFloat64(), 0.4, 15)

	v := features.Vitals{
		Age:              math.Round(age),
		Gender:           gender,
		HeartRate:        math.Round(clamp(84+14*severity+10*rng.NormFloat64(), 35, 190)),
		SystolicBP:       math.Round(clamp(124-13*severity+16*rng.NormFloat64(), 55, 230)),
		DiastolicBP:      math.Round(clamp(66-7*severity+10*rng.NormFloat64(), 25, 130)),
		OxygenSaturation: round1(clamp(97-2.2*math.Max(severity, 0)+1.2*rng.NormFloat64(), 70, 100)),
		Temperature:      round1(clamp(37+0.35*severity+0.5*rng.NormFloat64(), 34, 41.5)),
		RespiratoryRate:  math.Round(clamp(18+3.5*severity+3*rng.NormFloat64(), 8, 45)),
		GCS:              &gcs,
		Lactate:          &lactate,
	}
	saps := math.Round(clamp(14+4*severity+3*rng.NormFloat64(), 0, 40))

	// logit offset puts the base rate near the requested prevalence
	offset := math.Log(prevalence / (1 - prevalence))
	p := 1 / (1 + math.Exp(-(offset + 1.6*severity)))
	return patient{vitals: v, saps: saps, icu: rng.Float64() < p}
}

func writeCSV(path string, patients []patient, rng *rand.Rand, missingRate float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	header := append(features.CanonicalColumns(), evaluation.DefaultLabelColumn)
	if err := w.Write(header); err != nil {
		return err
	}

	optional := map[string]bool{features.ColGCS: true, features.ColLactate: true, features.ColTemp: true}
	for _, p := range patients {
		vec := features.Build(p.vitals, features.CanonicalColumns())
		values := vec.Values()
		record := make([]string, 0, len(header))
		for i, col := range vec.Names() {
			val := values[i]
			if col == features.ColSAPSI {
				val = p.saps
			}
			if optional[col] && rng.Float64() < missingRate {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(val, 'f', -1, 64))
		}
		label := "0"
		if p.icu {
			label = "1"
		}
		if err := w.Write(append(record, label)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, patients []patient) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, p := range patients {
		rec := struct {
			Vitals   features.Vitals `json:"vitals"`
			NeedsICU bool            `json:"needs_icu"`
		}{p.vitals, p.icu}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }

func round1(x float64) float64 { return math.Round(x*10) / 10 }
