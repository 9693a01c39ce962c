package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS admission_audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	identity    TEXT NOT NULL,
	nonce       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	observed_at DATETIME NOT NULL
)`

// SQLiteSink is the zero-dependency audit sink used when
// AUDIT_DATABASE_URL is unset; it writes to a file under WORKSPACE_BASE.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (creating if absent) the sqlite file at path and
// ensures the admission_audit table exists.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite audit sink: %w", err)
	}
	// A single connection avoids SQLITE_BUSY under the write-mostly,
	// low-throughput audit workload; every admission attempt inserts once.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create admission_audit table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Record inserts one audit row.
func (s *SQLiteSink) Record(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admission_audit (identity, nonce, outcome, reason, observed_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Identity, rec.Nonce, rec.Outcome, rec.Reason, rec.ObservedAt)
	return err
}

// Close releases the underlying connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
