package failures

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder stores failure records in an insert-only sqlite table.
type SQLiteRecorder struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open failure database: %w", err)
	}
	// a single connection serialises concurrent inserts
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS failures (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  model TEXT NOT NULL,
  scenario TEXT NOT NULL,
  ensemble TEXT NOT NULL,
  grid TEXT NOT NULL,
  variable TEXT NOT NULL,
  year INTEGER NOT NULL,
  object_key TEXT NOT NULL,
  url TEXT,
  kind TEXT NOT NULL,
  reason TEXT NOT NULL DEFAULT '',
  cause TEXT NOT NULL,
  attempt INTEGER NOT NULL
);
`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create failures table: %w", err)
	}

	return &SQLiteRecorder{db: db, path: path, logger: loggerOrDefault(logger)}, nil
}

// Record inserts rec. Errors are logged, never returned.
func (s *SQLiteRecorder) Record(ctx context.Context, rec Record) {
	// the record must land even if the run is being cancelled
	ctx = context.WithoutCancel(ctx)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (run_id, created_at, model, scenario, ensemble, grid, variable, year, object_key, url, kind, reason, cause, attempt)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Time.UnixMilli(),
		rec.Model,
		rec.Scenario,
		rec.Ensemble,
		rec.Grid,
		rec.Variable,
		rec.Year,
		rec.Key,
		rec.URL,
		string(rec.Kind),
		rec.Reason,
		rec.Cause,
		rec.Attempt,
	)
	if err != nil {
		s.logger.Warn("insert failure record", "path", s.path, "key", rec.Key, "error", err)
	}
}

// List returns records in insertion order. limit <= 0 returns all.
func (s *SQLiteRecorder) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT run_id, created_at, model, scenario, ensemble, grid, variable, year, object_key, url, kind, reason, cause, attempt
       FROM failures ORDER BY id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec       Record
			createdMs int64
			url       sql.NullString
			kind      string
		)
		if err := rows.Scan(&rec.RunID, &createdMs, &rec.Model, &rec.Scenario, &rec.Ensemble, &rec.Grid,
			&rec.Variable, &rec.Year, &rec.Key, &url, &kind, &rec.Reason, &rec.Cause, &rec.Attempt); err != nil {
			return nil, err
		}
		rec.Time = time.UnixMilli(createdMs).UTC()
		rec.Kind = Kind(kind)
		if url.Valid {
			rec.URL = url.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Location returns the database path.
func (s *SQLiteRecorder) Location() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}
