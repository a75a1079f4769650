// Package evaluation loads labelled patient data for offline threshold analysis
// and writes the resulting reports.
package evaluation

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"icu-risk/internal/features"
	"icu-risk/internal/storage"
)

const (
	// DefaultLabelColumn is the outcome column of the PhysioNet extract.
	DefaultLabelColumn = "In-hospital_death"
	// DefaultSeed matches the split seed the models were evaluated with.
	DefaultSeed = 42
)

// Dataset is a set of unscaled feature rows with binary ICU labels.
type Dataset struct {
	Name    string
	Columns []string
	Rows    []features.Vector
	Labels  []bool
}

func (d *Dataset) Len() int { return len(d.Rows) }

// Positives counts rows labelled as needing the ICU.
func (d *Dataset) Positives() int {
	n := 0
	for _, l := range d.Labels {
		if l {
			n++
		}
	}
	return n
}

// Prevalence is the positive share of the labels.
func (d *Dataset) Prevalence() float64 {
	if len(d.Labels) == 0 {
		return 0
	}
	xs := make([]float64, len(d.Labels))
	for i, l := range d.Labels {
		if l {
			xs[i] = 1
		}
	}
	return stat.Mean(xs, nil)
}

// ColumnStats summarises one feature column.
type ColumnStats struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Describe returns per-column statistics in column order.
func (d *Dataset) Describe() []ColumnStats {
	out := make([]ColumnStats, 0, len(d.Columns))
	for _, col := range d.Columns {
		xs := make([]float64, 0, len(d.Rows))
		for _, row := range d.Rows {
			if v, ok := row.Get(col); ok {
				xs = append(xs, v)
			}
		}
		if len(xs) == 0 {
			continue
		}
		cs := ColumnStats{Name: col, Mean: stat.Mean(xs, nil), Min: xs[0], Max: xs[0]}
		if len(xs) > 1 {
			cs.StdDev = stat.StdDev(xs, nil)
		}
		for _, x := range xs {
			cs.Min = math.Min(cs.Min, x)
			cs.Max = math.Max(cs.Max, x)
		}
		out = append(out, cs)
	}
	return out
}

// Holdout returns a stratified random subset holding fraction of each class, drawn
// with a seeded generator so repeated runs select the same rows.
func (d *Dataset) Holdout(fraction float64, seed uint64) (*Dataset, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("holdout fraction must be in (0,1], got %v", fraction)
	}
	if fraction == 1 {
		return d, nil
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	var pos, neg []int
	for i, l := range d.Labels {
		if l {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}

	pick := func(idx []int) []int {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := int(math.Ceil(fraction * float64(len(idx))))
		return idx[:n]
	}
	chosen := append(pick(pos), pick(neg)...)
	sort.Ints(chosen)

	out := &Dataset{Name: d.Name + "-holdout", Columns: d.Columns}
	for _, i := range chosen {
		out.Rows = append(out.Rows, d.Rows[i])
		out.Labels = append(out.Labels, d.Labels[i])
	}
	return out, nil
}

// Samples converts the dataset for storage.
func (d *Dataset) Samples() []storage.Sample {
	out := make([]storage.Sample, len(d.Rows))
	for i, row := range d.Rows {
		out[i] = storage.NewSample(d.Name, i, row, d.Labels[i])
	}
	return out
}

// DataLoader reads labelled data from CSV, JSON or the BoltDB store.
type DataLoader struct {
	columns     []string
	labelColumn string
}

// NewDataLoader creates a loader for columns (canonical if empty) and the given label
// column (DefaultLabelColumn if empty).
func NewDataLoader(columns []string, labelColumn string) *DataLoader {
	if len(columns) == 0 {
		columns = features.CanonicalColumns()
	}
	if labelColumn == "" {
		labelColumn = DefaultLabelColumn
	}
	return &DataLoader{columns: append([]string(nil), columns...), labelColumn: labelColumn}
}

// LoadFromCSV loads a CSV whose header holds the feature columns and the label column.
// Empty or NA cells are imputed with the column median; columns absent from the file
// take their clinical default.
func (dl *DataLoader) LoadFromCSV(path string) (*Dataset, error) {
	table, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	labels, err := table.labels(dl.labelColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dl.build(datasetName(path), table, labels, path)
}

// LoadFromSplitCSV loads features and labels from two CSV files with matching rows,
// the layout of the PhysioNet training extract.
func (dl *DataLoader) LoadFromSplitCSV(featuresPath, labelsPath string) (*Dataset, error) {
	table, err := readCSV(featuresPath)
	if err != nil {
		return nil, err
	}
	labelTable, err := readCSV(labelsPath)
	if err != nil {
		return nil, err
	}
	labels, err := labelTable.labels(dl.labelColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", labelsPath, err)
	}
	if len(labels) != len(table.rows) {
		return nil, fmt.Errorf("%s has %d rows but %s has %d labels",
			featuresPath, len(table.rows), labelsPath, len(labels))
	}
	return dl.build(datasetName(featuresPath), table, labels, featuresPath)
}

// jsonRecord is one labelled vitals snapshot.
type jsonRecord struct {
	Vitals   map[string]any `json:"vitals"`
	NeedsICU bool           `json:"needs_icu"`
}

// LoadFromJSON loads a stream of {"vitals": {...}, "needs_icu": bool} objects.
// Vitals go through the same input schema as live requests; incomplete records
// are skipped.
func (dl *DataLoader) LoadFromJSON(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	ds := &Dataset{Name: datasetName(path), Columns: dl.columns}
	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	skipped := 0
	for decoder.More() {
		var rec jsonRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		v, err := features.ParseVitals(rec.Vitals)
		if err != nil {
			skipped++
			continue
		}
		ds.Rows = append(ds.Rows, features.Build(v, dl.columns))
		ds.Labels = append(ds.Labels, rec.NeedsICU)
	}

	log.Info().
		Str("file", path).
		Int("rows", ds.Len()).
		Int("skipped", skipped).
		Msg("JSON data loaded successfully")

	return ds, nil
}

// LoadFromBoltDB loads a dataset previously stored with storage.StoreSamples.
func (dl *DataLoader) LoadFromBoltDB(store *storage.Store, dataset string) (*Dataset, error) {
	samples, err := store.GetSamples(dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", dataset, err)
	}

	ds := &Dataset{Name: dataset, Columns: dl.columns}
	for _, s := range samples {
		vec, err := s.Vector()
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", s.Index, err)
		}
		row, err := vec.Select(dl.columns)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", s.Index, err)
		}
		ds.Rows = append(ds.Rows, row)
		ds.Labels = append(ds.Labels, s.Label)
	}

	log.Info().
		Str("dataset", dataset).
		Int("rows", ds.Len()).
		Msg("Data loaded from BoltDB")

	return ds, nil
}

// build assembles the dataset, imputing missing cells with column medians.
func (dl *DataLoader) build(name string, table *csvTable, labels []bool, source string) (*Dataset, error) {
	n := len(table.rows)
	if n == 0 {
		return nil, fmt.Errorf("%s contains no rows", source)
	}

	cols := make([][]float64, len(dl.columns))
	imputed := 0
	for j, col := range dl.columns {
		values := make([]float64, n)
		idx, ok := table.index[col]
		if !ok {
			def := features.ColumnDefaults[col]
			for i := range values {
				values[i] = def
			}
			log.Warn().Str("column", col).Float64("default", def).Msg("Column missing from data, using default")
			cols[j] = values
			continue
		}

		for i, rec := range table.rows {
			values[i] = parseCell(rec, idx)
		}
		imputed += imputeMedian(values, features.ColumnDefaults[col])
		cols[j] = values
	}

	ds := &Dataset{Name: name, Columns: dl.columns, Labels: labels}
	ds.Rows = make([]features.Vector, n)
	row := make([]float64, len(dl.columns))
	for i := 0; i < n; i++ {
		for j := range dl.columns {
			row[j] = cols[j][i]
		}
		vec, err := features.NewVector(dl.columns, row)
		if err != nil {
			return nil, err
		}
		ds.Rows[i] = vec
	}

	log.Info().
		Str("file", source).
		Int("rows", n).
		Int("imputed_cells", imputed).
		Float64("prevalence", ds.Prevalence()).
		Msg("CSV data loaded successfully")

	return ds, nil
}

// imputeMedian replaces NaN entries with the median of the others, or def when the
// column is entirely missing. It returns the number of replaced cells.
func imputeMedian(values []float64, def float64) int {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == len(values) {
		return 0
	}

	fill := def
	if len(present) > 0 {
		fill = median(present)
	}
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = fill
		}
	}
	return len(values) - len(present)
}

// median averages the two middle values for an even count. xs is reordered.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	return (xs[(n-1)/2] + xs[n/2]) / 2
}

type csvTable struct {
	index map[string]int
	rows  [][]string
}

func readCSV(path string) (*csvTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	t := &csvTable{index: make(map[string]int, len(header))}
	for i, col := range header {
		t.index[strings.TrimSpace(col)] = i
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		t.rows = append(t.rows, record)
	}
	return t, nil
}

// labels parses a 0/1 or true/false column.
func (t *csvTable) labels(column string) ([]bool, error) {
	idx, ok := t.index[column]
	if !ok {
		return nil, fmt.Errorf("label column %q not found", column)
	}
	out := make([]bool, len(t.rows))
	for i, rec := range t.rows {
		if idx >= len(rec) {
			return nil, fmt.Errorf("row %d has no label", i+1)
		}
		raw := strings.TrimSpace(rec[idx])
		if b, err := strconv.ParseBool(raw); err == nil {
			out[i] = b
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || (f != 0 && f != 1) {
			return nil, fmt.Errorf("row %d: invalid label %q", i+1, raw)
		}
		out[i] = f == 1
	}
	return out, nil
}

func parseCell(rec []string, idx int) float64 {
	if idx >= len(rec) {
		return math.NaN()
	}
	raw := strings.TrimSpace(rec[idx])
	switch strings.ToLower(raw) {
	case "", "na", "nan", "null":
		return math.NaN()
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

func datasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
