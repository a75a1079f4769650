package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"icu-risk/internal/thresholds"
)

// runKeyLayout is RFC3339 with fixed-width nanoseconds so keys sort by time.
const runKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ThresholdRun is one offline threshold computation.
type ThresholdRun struct {
	RunAt       time.Time       `json:"run_at"`
	Dataset     string          `json:"dataset"`
	ModelSource string          `json:"model_source"`
	Set         *thresholds.Set `json:"set"`
}

func runKey(t time.Time) []byte {
	return []byte(t.UTC().Format(runKeyLayout))
}

// StoreThresholdRun persists run keyed by its time. A zero RunAt is set to now.
func (s *Store) StoreThresholdRun(run ThresholdRun) error {
	if run.Set == nil {
		return fmt.Errorf("threshold run has no threshold set")
	}
	if run.RunAt.IsZero() {
		run.RunAt = time.Now()
	}
	run.RunAt = run.RunAt.UTC()

	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, runsBucket, runKey(run.RunAt), run)
	})
}

// GetThresholdRuns returns the runs within [start, end] ordered by time.
func (s *Store) GetThresholdRuns(start, end time.Time) ([]ThresholdRun, error) {
	return scanRange[ThresholdRun](s, runsBucket, runKey(start), runKey(end))
}

// LatestThresholdRun returns the most recent run.
func (s *Store) LatestThresholdRun() (ThresholdRun, error) {
	var run ThresholdRun
	found := false

	err := s.db.View(func(tx *bbolt.Tx) error {
		_, v := tx.Bucket([]byte(runsBucket)).Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return ThresholdRun{}, fmt.Errorf("read latest threshold run: %w", err)
	}
	if !found {
		return ThresholdRun{}, fmt.Errorf("threshold run: %w", ErrNotFound)
	}
	return run, nil
}
