package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatchRecord is one row of the batch ledger.
type BatchRecord struct {
	ID        int64    `json:"id"`
	BatchID   string   `json:"batch_id"`
	Queries   []string `json:"queries"`
	CreatedAt int64    `json:"created_at"`
}

// RecordBatch appends a generated batch. A batch id regenerated after
// eviction gets a second row.
func (db *DB) RecordBatch(batchID string, queries []string, createdAt time.Time) error {
	if queries == nil {
		queries = []string{}
	}
	data, err := json.Marshal(queries)
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO batches (batch_id, queries, query_count, created_at)
		VALUES (?, ?, ?, ?)
	`, batchID, string(data), len(queries), createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// RecentBatches returns up to limit ledger rows, newest first.
func (db *DB) RecentBatches(limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT id, batch_id, queries, created_at
		FROM batches ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRecord
	for rows.Next() {
		var r BatchRecord
		var raw string
		if err := rows.Scan(&r.ID, &r.BatchID, &raw, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Queries); err != nil {
			return nil, fmt.Errorf("decode queries for %s: %w", r.BatchID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountBatches returns the number of ledger rows.
func (db *DB) CountBatches() (int, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM batches").Scan(&n)
	return n, err
}
