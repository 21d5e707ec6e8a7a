package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "batches: ledger of generated query batches",
		SQL: `
CREATE TABLE batches (
    id          INTEGER PRIMARY KEY,
    batch_id    TEXT NOT NULL,
    queries     TEXT NOT NULL,
    query_count INTEGER NOT NULL,
    created_at  INTEGER NOT NULL
);

CREATE INDEX idx_batches_batch_id   ON batches(batch_id);
CREATE INDEX idx_batches_created_at ON batches(created_at DESC);
`,
	},
	{
		Version:     2,
		Description: "publications: feed generator records written to the PDS",
		SQL: `
CREATE TABLE publications (
    id           INTEGER PRIMARY KEY,
    record_name  TEXT NOT NULL,
    uri          TEXT NOT NULL,
    cid          TEXT NOT NULL,
    service_did  TEXT NOT NULL,
    published_at INTEGER NOT NULL
);

CREATE INDEX idx_publications_record ON publications(record_name, published_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
