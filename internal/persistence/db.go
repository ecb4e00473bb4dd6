// Package persistence provides the SQLite generation journal.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hex-mosaic/internal/mosaic"
)

// DB wraps a SQLite connection holding the generation journal.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		direction TEXT NOT NULL,
		prompt TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL,
		payload_bytes INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_generations_coord ON generations(q, r);
	CREATE INDEX IF NOT EXISTS idx_generations_status ON generations(status);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type generationRow struct {
	ID           string `db:"id"`
	Kind         string `db:"kind"`
	Q            int    `db:"q"`
	R            int    `db:"r"`
	Direction    string `db:"direction"`
	Prompt       string `db:"prompt"`
	Status       string `db:"status"`
	Error        string `db:"error"`
	PayloadBytes int    `db:"payload_bytes"`
	DurationNS   int64  `db:"duration_ns"`
	CreatedAt    int64  `db:"created_at"`
}

func (row generationRow) record() mosaic.Record {
	return mosaic.Record{
		ID:           row.ID,
		Kind:         row.Kind,
		Q:            row.Q,
		R:            row.R,
		Direction:    row.Direction,
		Prompt:       row.Prompt,
		Status:       row.Status,
		Error:        row.Error,
		PayloadBytes: row.PayloadBytes,
		Duration:     time.Duration(row.DurationNS),
		CreatedAt:    time.Unix(0, row.CreatedAt).UTC(),
	}
}

// RecordGeneration appends one attempt to the journal.
func (db *DB) RecordGeneration(ctx context.Context, rec mosaic.Record) error {
	_, err := db.conn.NamedExecContext(ctx, `INSERT INTO generations
		(id, kind, q, r, direction, prompt, status, error, payload_bytes, duration_ns, created_at)
		VALUES (:id, :kind, :q, :r, :direction, :prompt, :status, :error, :payload_bytes, :duration_ns, :created_at)`,
		generationRow{
			ID:           rec.ID,
			Kind:         rec.Kind,
			Q:            rec.Q,
			R:            rec.R,
			Direction:    rec.Direction,
			Prompt:       rec.Prompt,
			Status:       rec.Status,
			Error:        rec.Error,
			PayloadBytes: rec.PayloadBytes,
			DurationNS:   int64(rec.Duration),
			CreatedAt:    rec.CreatedAt.UnixNano(),
		},
	)
	if err != nil {
		return fmt.Errorf("insert generation %s: %w", rec.ID, err)
	}
	slog.Debug("generation journaled", "id", rec.ID, "status", rec.Status,
		"payload", humanize.Bytes(uint64(rec.PayloadBytes)))
	return nil
}

// RecentGenerations returns the most recent N attempts, newest first.
func (db *DB) RecentGenerations(ctx context.Context, limit int) ([]mosaic.Record, error) {
	var rows []generationRow
	err := db.conn.SelectContext(ctx, &rows,
		`SELECT id, kind, q, r, direction, prompt, status, error, payload_bytes, duration_ns, created_at
		FROM generations ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]mosaic.Record, len(rows))
	for i, row := range rows {
		out[i] = row.record()
	}
	return out, nil
}

// Stats summarizes the journal.
type Stats struct {
	Total        int   `db:"total" json:"total"`
	OK           int   `db:"ok" json:"ok"`
	Failed       int   `db:"failed" json:"failed"`
	Discarded    int   `db:"discarded" json:"discarded"`
	PayloadBytes int64 `db:"payload_bytes" json:"payload_bytes"`
}

// GenerationStats counts journaled attempts by status.
func (db *DB) GenerationStats(ctx context.Context) (Stats, error) {
	var s Stats
	err := db.conn.GetContext(ctx, &s, `SELECT
		COUNT(*) AS total,
		COALESCE(SUM(status = 'ok'), 0) AS ok,
		COALESCE(SUM(status = 'failed'), 0) AS failed,
		COALESCE(SUM(status = 'discarded'), 0) AS discarded,
		COALESCE(SUM(payload_bytes), 0) AS payload_bytes
		FROM generations`)
	return s, err
}
