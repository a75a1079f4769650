package storage

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"icu-risk/internal/features"
	"icu-risk/internal/thresholds"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testSample(t *testing.T, dataset string, index int, hr float64, label bool) Sample {
	t.Helper()
	v, err := features.NewVector(
		[]string{features.ColAge, features.ColHR, features.ColSaO2},
		[]float64{60, hr, 95},
	)
	if err != nil {
		t.Fatalf("Failed to build vector: %v", err)
	}
	return NewSample(dataset, index, v, label)
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "icu-risk.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	invalidPath := filepath.Join(t.TempDir(), "missing", "dir")

	_, err := New(invalidPath)
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}

	// Test closing already closed store
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestStoreSamples_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	// indices written out of order come back sorted
	samples := []Sample{
		testSample(t, "physionet", 10, 120, true),
		testSample(t, "physionet", 2, 80, false),
		testSample(t, "physionet", 1, 95, false),
	}
	if err := store.StoreSamples(samples); err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	got, err := store.GetSamples("physionet")
	if err != nil {
		t.Fatalf("Failed to get samples: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 samples, got %d", len(got))
	}
	for i, want := range []int{1, 2, 10} {
		if got[i].Index != want {
			t.Errorf("Expected index %d at position %d, got %d", want, i, got[i].Index)
		}
	}
	if !got[2].Label {
		t.Error("Expected sample 10 to be labelled positive")
	}

	v, err := got[2].Vector()
	if err != nil {
		t.Fatalf("Failed to rebuild vector: %v", err)
	}
	if hr, _ := v.Get(features.ColHR); hr != 120 {
		t.Errorf("Expected HR 120, got %f", hr)
	}
}

func TestStoreSamples_Replace(t *testing.T) {
	store := newTestStore(t)

	if err := store.StoreSamples([]Sample{testSample(t, "ds", 0, 80, false)}); err != nil {
		t.Fatalf("Failed to store sample: %v", err)
	}
	if err := store.StoreSamples([]Sample{testSample(t, "ds", 0, 130, true)}); err != nil {
		t.Fatalf("Failed to store sample: %v", err)
	}

	got, err := store.GetSamples("ds")
	if err != nil {
		t.Fatalf("Failed to get samples: %v", err)
	}
	if len(got) != 1 || !got[0].Label {
		t.Errorf("Expected the second write to replace the first, got %+v", got)
	}
}

func TestStoreSamples_InvalidInput(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name   string
		sample Sample
	}{
		{"empty dataset", Sample{Dataset: "", Index: 0}},
		{"separator in dataset", Sample{Dataset: "a/b", Index: 0}},
		{"negative index", Sample{Dataset: "ds", Index: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.StoreSamples([]Sample{tt.sample}); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestGetSamples_DatasetIsolation(t *testing.T) {
	store := newTestStore(t)

	err := store.StoreSamples([]Sample{
		testSample(t, "train", 0, 80, false),
		testSample(t, "train2", 0, 90, false),
		testSample(t, "train2", 1, 100, true),
	})
	if err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	got, err := store.GetSamples("train")
	if err != nil {
		t.Fatalf("Failed to get samples: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 sample for train, got %d", len(got))
	}

	names, err := store.Datasets()
	if err != nil {
		t.Fatalf("Failed to list datasets: %v", err)
	}
	if len(names) != 2 || names[0] != "train" || names[1] != "train2" {
		t.Errorf("Expected [train train2], got %v", names)
	}
}

func TestGetSamples_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSamples("absent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeleteDataset(t *testing.T) {
	store := newTestStore(t)

	err := store.StoreSamples([]Sample{
		testSample(t, "old", 0, 80, false),
		testSample(t, "old", 1, 90, true),
		testSample(t, "keep", 0, 100, true),
	})
	if err != nil {
		t.Fatalf("Failed to store samples: %v", err)
	}

	if err := store.DeleteDataset("old"); err != nil {
		t.Fatalf("Failed to delete dataset: %v", err)
	}
	if _, err := store.GetSamples("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected deleted dataset to be gone, got %v", err)
	}
	if got, err := store.GetSamples("keep"); err != nil || len(got) != 1 {
		t.Errorf("Expected other dataset to survive, got %v, %v", got, err)
	}
}

func testSet(t *testing.T) *thresholds.Set {
	t.Helper()
	set, err := thresholds.Compute(
		[]float64{0.9, 0.8, 0.7, 0.6, 0.4, 0.2},
		[]bool{true, false, true, true, false, false},
	)
	if err != nil {
		t.Fatalf("Failed to compute thresholds: %v", err)
	}
	return set
}

func TestThresholdRuns(t *testing.T) {
	store := newTestStore(t)
	set := testSet(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// sub-second offsets that would misorder with a trimmed nanosecond format
	offsets := []time.Duration{0, 500 * time.Millisecond, 510 * time.Millisecond, time.Hour}
	for _, off := range offsets {
		run := ThresholdRun{RunAt: base.Add(off), Dataset: "physionet", ModelSource: "primary", Set: set}
		if err := store.StoreThresholdRun(run); err != nil {
			t.Fatalf("Failed to store run: %v", err)
		}
	}

	runs, err := store.GetThresholdRuns(base, base.Add(time.Second))
	if err != nil {
		t.Fatalf("Failed to get runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs in range, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if !runs[i].RunAt.After(runs[i-1].RunAt) {
			t.Errorf("Runs not ordered by time: %v then %v", runs[i-1].RunAt, runs[i].RunAt)
		}
	}

	latest, err := store.LatestThresholdRun()
	if err != nil {
		t.Fatalf("Failed to get latest run: %v", err)
	}
	if !latest.RunAt.Equal(base.Add(time.Hour)) {
		t.Errorf("Expected latest run at %v, got %v", base.Add(time.Hour), latest.RunAt)
	}
	p, ok := latest.Set.Policy(thresholds.PolicyF1)
	if !ok || math.Abs(p.Threshold-0.5) > 1e-12 {
		t.Errorf("Expected F1 threshold 0.5 to survive storage, got %+v", p)
	}
}

func TestThresholdRuns_Empty(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.LatestThresholdRun(); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.StoreThresholdRun(ThresholdRun{}); err == nil {
		t.Error("Expected error for run without a set")
	}
}

func TestStoreThresholdRun_DefaultsTime(t *testing.T) {
	store := newTestStore(t)

	before := time.Now()
	if err := store.StoreThresholdRun(ThresholdRun{Set: testSet(t)}); err != nil {
		t.Fatalf("Failed to store run: %v", err)
	}

	latest, err := store.LatestThresholdRun()
	if err != nil {
		t.Fatalf("Failed to get latest run: %v", err)
	}
	if latest.RunAt.Before(before.Add(-time.Second)) {
		t.Errorf("Expected run time near now, got %v", latest.RunAt)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := newTestStore(t)

	samples := make([]Sample, 50)
	for i := range samples {
		samples[i] = testSample(t, "concurrent", i, 80, i%2 == 0)
	}

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := store.StoreSamples([]Sample{samples[g*10+i]}); err != nil {
					t.Errorf("Failed to store sample: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	got, err := store.GetSamples("concurrent")
	if err != nil {
		t.Fatalf("Failed to get samples: %v", err)
	}
	if len(got) != 50 {
		t.Errorf("Expected 50 samples, got %d", len(got))
	}
}

func BenchmarkStoreSamples(b *testing.B) {
	store, err := New(b.TempDir())
	if err != nil {
		b.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	v, _ := features.NewVector([]string{features.ColHR}, []float64{80})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := store.StoreSamples([]Sample{NewSample("bench", i, v, false)}); err != nil {
			b.Fatal(err)
		}
	}
}
