package storage

import (
	"fmt"
	"sort"
	"strings"

	"go.etcd.io/bbolt"

	"icu-risk/internal/features"
)

const datasetSep = "/"

// Sample is one labelled evaluation row: an unscaled feature vector and whether
// the patient was admitted to the ICU.
type Sample struct {
	Dataset string    `json:"dataset"`
	Index   int       `json:"index"`
	Names   []string  `json:"names"`
	Values  []float64 `json:"values"`
	Label   bool      `json:"label"`
}

// NewSample captures v as a stored row.
func NewSample(dataset string, index int, v features.Vector, label bool) Sample {
	return Sample{
		Dataset: dataset,
		Index:   index,
		Names:   v.Names(),
		Values:  v.Values(),
		Label:   label,
	}
}

// Vector rebuilds the feature vector.
func (s Sample) Vector() (features.Vector, error) {
	return features.NewVector(s.Names, s.Values)
}

func sampleKey(dataset string, index int) []byte {
	return []byte(fmt.Sprintf("%s%s%010d", dataset, datasetSep, index))
}

func checkDataset(dataset string) error {
	if dataset == "" || strings.Contains(dataset, datasetSep) {
		return fmt.Errorf("invalid dataset name %q", dataset)
	}
	return nil
}

// StoreSamples writes samples in a single transaction. Rows with the same dataset
// and index replace earlier ones.
func (s *Store) StoreSamples(samples []Sample) error {
	for _, sample := range samples {
		if err := checkDataset(sample.Dataset); err != nil {
			return err
		}
		if sample.Index < 0 {
			return fmt.Errorf("sample index must be non-negative, got %d", sample.Index)
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, sample := range samples {
			if err := put(tx, samplesBucket, sampleKey(sample.Dataset, sample.Index), sample); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSamples returns the rows of one dataset ordered by index.
func (s *Store) GetSamples(dataset string) ([]Sample, error) {
	if err := checkDataset(dataset); err != nil {
		return nil, err
	}
	samples, err := scanPrefix[Sample](s, samplesBucket, []byte(dataset+datasetSep))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %q: %w", dataset, ErrNotFound)
	}
	return samples, nil
}

// Datasets lists the stored dataset names in sorted order.
func (s *Store) Datasets() ([]string, error) {
	seen := make(map[string]struct{})

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(samplesBucket)).ForEach(func(k, _ []byte) error {
			if name, _, ok := strings.Cut(string(k), datasetSep); ok {
				seen[name] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteDataset removes every row of dataset.
func (s *Store) DeleteDataset(dataset string) error {
	if err := checkDataset(dataset); err != nil {
		return err
	}
	prefix := []byte(dataset + datasetSep)

	return s.db.Update(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(samplesBucket)).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Seek(prefix) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
}
