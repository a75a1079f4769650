package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"icu-risk/internal/cfg"
	"icu-risk/internal/evaluation"
	"icu-risk/internal/features"
	"icu-risk/internal/ml"
	"icu-risk/internal/storage"
	"icu-risk/internal/thresholds"
)

// recordingScorer keeps every score so the reports can re-evaluate cut-points.
type recordingScorer struct {
	model  *ml.TabularModel
	scores []float64
}

func (r *recordingScorer) ScoreVector(v features.Vector) (float64, error) {
	s, err := r.model.ScoreVector(v)
	if err == nil {
		r.scores = append(r.scores, s)
	}
	return s, err
}

func main() {
	var (
		dataPath    = flag.String("data", "", "CSV/JSON file, or data directory for boltdb")
		labelsPath  = flag.String("labels", "", "Separate labels CSV matching -data rows")
		dataFormat  = flag.String("format", "auto", "Data format: auto, csv, json, boltdb")
		dataset     = flag.String("dataset", "", "Dataset name in BoltDB (boltdb format)")
		labelColumn = flag.String("label-column", evaluation.DefaultLabelColumn, "Outcome column name")
		holdout     = flag.Float64("holdout", 0.2, "Stratified share of rows to evaluate on (1 = all)")
		seed        = flag.Uint64("seed", evaluation.DefaultSeed, "Holdout selection seed")
		modelPath   = flag.String("model", "", "Tabular model path (overrides config)")
		outputPath  = flag.String("output", "reports/thresholds", "Output directory for reports")
		importData  = flag.Bool("import", false, "Store the loaded dataset in BoltDB")
		record      = flag.Bool("record", true, "Record the threshold run in BoltDB")
		importance  = flag.Bool("importance", true, "Compute permutation feature importance")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *modelPath != "" {
		config.Primary.Model = *modelPath
	}
	if *dataPath == "" {
		*dataPath = config.DataPath
	}

	fmt.Println("=== Threshold Analysis Configuration ===")
	fmt.Printf("Data: %s (%s)\n", *dataPath, *dataFormat)
	fmt.Printf("Model: %s\n", config.Primary.Model)
	fmt.Printf("Holdout: %.2f (seed %d)\n", *holdout, *seed)
	fmt.Printf("Output Directory: %s\n", *outputPath)
	fmt.Println("========================================")

	loader := evaluation.NewDataLoader(nil, *labelColumn)

	var store *storage.Store
	openStore := func() *storage.Store {
		if store == nil {
			dir := config.DataPath
			if *dataFormat == "boltdb" {
				dir = *dataPath
			}
			if store, err = storage.New(dir); err != nil {
				log.Fatal().Err(err).Str("path", dir).Msg("Failed to open BoltDB")
			}
		}
		return store
	}
	defer func() {
		if store != nil {
			store.Close()
		}
	}()

	var ds *evaluation.Dataset
	switch *dataFormat {
	case "csv":
		ds, err = loadCSV(loader, *dataPath, *labelsPath)
	case "json":
		ds, err = loader.LoadFromJSON(*dataPath)
	case "boltdb":
		ds, err = loader.LoadFromBoltDB(openStore(), *dataset)
	case "auto":
		ds, err = autoLoadData(loader, *dataPath, *labelsPath, *dataset)
	default:
		log.Fatal().Str("format", *dataFormat).Msg("Unknown data format")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load data")
	}

	if *importData {
		if err := openStore().StoreSamples(ds.Samples()); err != nil {
			log.Fatal().Err(err).Msg("Failed to import dataset")
		}
		log.Info().Str("dataset", ds.Name).Int("rows", ds.Len()).Msg("Dataset imported")
	}

	eval, err := ds.Holdout(*holdout, *seed)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid holdout")
	}
	log.Info().
		Int("rows", eval.Len()).
		Int("icu_cases", eval.Positives()).
		Msg("Evaluation set ready")

	reg := ml.LoadRegistry(config.RegistryConfig(nil, nil))
	if !reg.Tabular().Available() {
		log.Fatal().Msg("Threshold analysis needs a loaded tabular model")
	}

	scorer := &recordingScorer{model: reg.Tabular()}
	set, err := thresholds.Evaluate(scorer, eval.Rows, eval.Labels)
	if err != nil {
		log.Fatal().Err(err).Msg("Threshold computation failed")
	}

	result := &evaluation.Result{
		Dataset:     eval.Name,
		ModelSource: reg.Tabular().Source(),
		Set:         set,
		Scores:      scorer.scores,
		Labels:      eval.Labels,
		Columns:     eval.Describe(),
	}

	if *importance {
		ranked, err := evaluation.PermutationImportance(reg.Tabular(), eval, *seed)
		if err != nil {
			log.Warn().Err(err).Msg("Permutation importance failed")
		} else {
			result.Importance = ranked
			if len(ranked) > 0 {
				log.Info().Str("feature", ranked[0].Name).Float64("auc_drop", ranked[0].Importance).Msg("Most important feature")
			}
		}
	}

	reporter := evaluation.NewReporter(result, *outputPath)
	if err := reporter.GenerateReport(); err != nil {
		log.Error().Err(err).Msg("Failed to generate reports")
	}
	reporter.PrintSummary()

	if *record {
		run := storage.ThresholdRun{
			RunAt:       time.Now(),
			Dataset:     eval.Name,
			ModelSource: result.ModelSource,
			Set:         set,
		}
		if err := openStore().StoreThresholdRun(run); err != nil {
			log.Error().Err(err).Msg("Failed to record threshold run")
		}
	}

	log.Info().
		Str("output", *outputPath).
		Float64("auc", set.AUC).
		Msg("Threshold analysis completed successfully")
}

func loadCSV(loader *evaluation.DataLoader, path, labelsPath string) (*evaluation.Dataset, error) {
	if labelsPath != "" {
		return loader.LoadFromSplitCSV(path, labelsPath)
	}
	return loader.LoadFromCSV(path)
}

// autoLoadData picks the loader from the path: a directory is a BoltDB data dir,
// otherwise the file extension decides.
func autoLoadData(loader *evaluation.DataLoader, path, labelsPath, dataset string) (*evaluation.Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		store, err := storage.New(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open BoltDB: %w", err)
		}
		defer store.Close()
		return loader.LoadFromBoltDB(store, dataset)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadCSV(loader, path, labelsPath)
	case ".json", ".jsonl":
		return loader.LoadFromJSON(path)
	default:
		return nil, fmt.Errorf("cannot determine file format for: %s", path)
	}
}
