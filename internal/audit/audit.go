// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package audit records one row per conversion request in a SQLite
// database. Records carry metadata only, never file content.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/extract-server/pkg/types"
)

const defaultRecentLimit = 20

// Recorder accepts conversion records. The server depends on this rather
// than on Store so auditing can be switched off.
type Recorder interface {
	Record(ctx context.Context, rec types.ConversionRecord) error
}

// Nop discards every record.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, types.ConversionRecord) error { return nil }

// Store manages the audit SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the audit database at path, creating parent
// directories and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			filename TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			backend TEXT,
			status TEXT NOT NULL,
			error TEXT,
			title TEXT,
			duration_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_created_at ON conversions(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_status ON conversions(status)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record inserts rec. A zero CreatedAt is set to the current time.
func (s *Store) Record(ctx context.Context, rec types.ConversionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversions (id, filename, size_bytes, backend, status, error, title, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.SizeBytes, rec.Backend, string(rec.Status),
		rec.Error, rec.Title, rec.Duration.Milliseconds(),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording conversion %s: %w", rec.ID, err)
	}
	return nil
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	Status types.ConversionStatus
	Limit  int
}

// Recent returns the newest records first.
func (s *Store) Recent(ctx context.Context, f Filter) ([]types.ConversionRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	query := `SELECT id, filename, size_bytes, backend, status, error, title, duration_ms, created_at
		FROM conversions`
	args := []any{}
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conversions: %w", err)
	}
	defer rows.Close()

	var out []types.ConversionRecord
	for rows.Next() {
		var rec types.ConversionRecord
		var backend, errMsg, ttl sql.NullString
		var status, created string
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.Filename, &rec.SizeBytes, &backend, &status,
			&errMsg, &ttl, &durationMS, &created); err != nil {
			return nil, fmt.Errorf("scanning conversion: %w", err)
		}
		rec.Backend = backend.String
		rec.Status = types.ConversionStatus(status)
		rec.Error = errMsg.String
		rec.Title = ttl.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats counts records per status.
func (s *Store) Stats(ctx context.Context) (map[types.ConversionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM conversions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting conversions: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.ConversionStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[types.ConversionStatus(status)] = n
	}
	return counts, rows.Err()
}
