// Package storage provides persistent data storage for the signal service.
// It uses BoltDB as the underlying storage engine to store prediction audit
// records and backtest run history.
//
// The package provides thread-safe operations for storing and retrieving
// time-keyed records with efficient prefix scans and automatic bucket
// management. A nil *Store is tolerated by every method, so callers can
// treat persistence as optional.
package storage

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	predictionsBucket = "predictions" // Bucket name for prediction audit records
	backtestsBucket   = "backtests"  // Bucket name for backtest run summaries
)

// Store provides persistent storage for service data using BoltDB.
// It manages one bucket per record type and keys every record as
// "<prefix>_<unixnano>" for efficient time-ordered prefix queries.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
// Returns an error if the database cannot be opened or buckets cannot be created.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "signal-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(backtestsBucket)); err != nil {
			return fmt.Errorf("create backtests bucket: %w", err)
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
// It should be called when the storage is no longer needed to ensure
// proper cleanup of database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// scanPrefix iterates a bucket over all keys carrying the given prefix
// whose timestamp suffix is at or after start, applying fn to each value.
func (s *Store) scanPrefix(bucketName, prefix string, start time.Time, fn func(k, v []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		c := b.Cursor()

		p := []byte(prefix + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", prefix, start.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}
