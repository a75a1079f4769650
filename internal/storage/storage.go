// Package storage provides persistent data storage for the ICU risk service.
// It uses BoltDB as the underlying storage engine to keep labelled evaluation
// samples and the results of offline threshold runs.
//
// Keys are built so that BoltDB's byte ordering matches the natural order of the
// records: samples by dataset then index, threshold runs by time.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	samplesBucket = "evaluation_samples" // Bucket name for labelled evaluation rows
	runsBucket    = "threshold_runs"     // Bucket name for threshold computations

	dbFile = "icu-risk.db"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance under dataPath. It initializes the BoltDB
// database and creates the buckets.
func New(dataPath string) (*Store, error) {
	return Open(filepath.Join(dataPath, dbFile))
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(samplesBucket)); err != nil {
			return fmt.Errorf("create samples bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create threshold runs bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// put marshals v as JSON under key in bucket.
func put(tx *bbolt.Tx, bucket string, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", bucket, err)
	}
	return tx.Bucket([]byte(bucket)).Put(key, data)
}

// scanPrefix decodes every record whose key starts with prefix, in key order.
// Malformed records are skipped.
func scanPrefix[T any](s *Store, bucket string, prefix []byte) ([]T, error) {
	var records []T

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var record T
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}

// scanRange decodes every record whose key lies in [startKey, endKey], in key order.
func scanRange[T any](s *Store, bucket string, startKey, endKey []byte) ([]T, error) {
	var records []T

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var record T
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})

	return records, err
}
