package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS admission_audit (
	id          BIGSERIAL PRIMARY KEY,
	identity    TEXT NOT NULL,
	nonce       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	observed_at TIMESTAMPTZ NOT NULL
)`

// PostgresSink writes admission audit rows to a Postgres database via
// pgx's database/sql driver.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens databaseURL and creates the admission_audit
// table if it does not already exist.
func NewPostgresSink(databaseURL string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres audit sink: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres audit sink: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create admission_audit table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// Record inserts one audit row.
func (s *PostgresSink) Record(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admission_audit (identity, nonce, outcome, reason, observed_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.Identity, rec.Nonce, rec.Outcome, rec.Reason, rec.ObservedAt)
	return err
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
