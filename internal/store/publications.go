package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Publication records a feed generator record written to the PDS.
type Publication struct {
	ID          int64
	RecordName  string
	URI         string
	CID         string
	ServiceDID  string
	PublishedAt int64
}

// RecordPublication stores a successful putRecord.
func (db *DB) RecordPublication(p Publication) (int64, error) {
	if p.PublishedAt == 0 {
		p.PublishedAt = time.Now().UnixMilli()
	}
	result, err := db.Exec(`
		INSERT INTO publications (record_name, uri, cid, service_did, published_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.RecordName, p.URI, p.CID, p.ServiceDID, p.PublishedAt)
	if err != nil {
		return 0, fmt.Errorf("insert publication: %w", err)
	}
	return result.LastInsertId()
}

// LatestPublication returns the newest publication of recordName, or nil.
func (db *DB) LatestPublication(recordName string) (*Publication, error) {
	var p Publication
	err := db.QueryRow(`
		SELECT id, record_name, uri, cid, service_did, published_at
		FROM publications WHERE record_name = ?
		ORDER BY published_at DESC, id DESC LIMIT 1
	`, recordName).Scan(&p.ID, &p.RecordName, &p.URI, &p.CID, &p.ServiceDID, &p.PublishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publication: %w", err)
	}
	return &p, nil
}
