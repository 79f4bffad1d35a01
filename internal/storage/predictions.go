package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

// PredictionRecord is one audited inference outcome. Records are written
// best-effort after each successful prediction and consulted offline for
// live-performance analysis against later-labeled data.
type PredictionRecord struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	ModelVersion string    `json:"modelVersion"`
	Symbol       string    `json:"symbol"`
	Signal       string    `json:"signal"`
	Probability  float64   `json:"probability"`
	Confidence   int       `json:"confidence"`
	AnomalyScore float64   `json:"anomalyScore,omitempty"`
}

// StorePrediction stores a prediction audit record keyed by
// "symbol_timestamp". A missing ID is filled with a fresh UUID.
// Returns an error if the record cannot be serialized or stored.
func (s *Store) StorePrediction(rec PredictionRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}

		key := fmt.Sprintf("%s_%d", rec.Symbol, rec.Timestamp.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// RecentPredictions retrieves audit records for a symbol from the given
// start time onward, ordered by timestamp. Malformed records are skipped.
func (s *Store) RecentPredictions(symbol string, since time.Time) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var records []PredictionRecord
	err := s.scanPrefix(predictionsBucket, symbol, since, func(_, v []byte) error {
		var rec PredictionRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil // skip malformed records
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// PrunePredictions deletes audit records older than the cutoff across all
// symbols and reports how many were removed.
func (s *Store) PrunePredictions(cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}

	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec PredictionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if rec.Timestamp.Before(cutoff) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Pruned prediction audit records")
	}
	return removed, nil
}
