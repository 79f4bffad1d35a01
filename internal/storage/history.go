package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// StoreBacktest stores a backtest run summary keyed by
// "modelVersion_timestamp". The summary may be any JSON-marshalable
// value; the backtest reporter passes its full run summary.
func (s *Store) StoreBacktest(modelVersion string, summary any) error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(backtestsBucket))

		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshal backtest summary: %w", err)
		}

		key := fmt.Sprintf("%s_%d", modelVersion, time.Now().UnixNano())
		return b.Put([]byte(key), data)
	})
}

// BacktestHistory retrieves every stored run summary for a model version
// in chronological order, as raw JSON documents.
func (s *Store) BacktestHistory(modelVersion string) ([]json.RawMessage, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var runs []json.RawMessage
	err := s.scanPrefix(backtestsBucket, modelVersion, time.Unix(0, 0), func(_, v []byte) error {
		runs = append(runs, json.RawMessage(append([]byte(nil), v...)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
