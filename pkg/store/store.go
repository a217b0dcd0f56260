// Package store provides access to the activities dataset in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Store wraps the activities database. The query path opens the database
// read-only so agent-issued queries cannot mutate the dataset; ingest opens
// a separate read-write handle.
type Store struct {
	path string
	db   *sql.DB
}

// Stats summarizes the dataset for the system prompt.
type Stats struct {
	ActivityCount int64
	FirstDate     string
	LastDate      string
}

// OpenReadOnly opens the dataset for querying. The database file must exist.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset not found at %s: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=3000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	return &Store{path: path, db: db}, nil
}

// OpenReadWrite opens (creating if necessary) the dataset for ingestion.
func OpenReadWrite(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=3000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	s := &Store{path: path, db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("Dataset opened read-write")
	return s, nil
}

// Path returns the dataset file path, used by the script sandbox preamble.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle for the ingest job.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats returns activity count and date range for the prompt builder.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(MIN(start_date_local), ''), COALESCE(MAX(start_date_local), '') FROM activities")

	var st Stats
	if err := row.Scan(&st.ActivityCount, &st.FirstDate, &st.LastDate); err != nil {
		return Stats{}, fmt.Errorf("failed to read dataset stats: %w", err)
	}

	// Keep only the date portion of ISO timestamps.
	if len(st.FirstDate) > 10 {
		st.FirstDate = st.FirstDate[:10]
	}
	if len(st.LastDate) > 10 {
		st.LastDate = st.LastDate[:10]
	}

	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS activities (
	id INTEGER PRIMARY KEY,
	name TEXT,
	type TEXT,
	sport_type TEXT,
	start_date TEXT,
	start_date_local TEXT,
	timezone TEXT,
	distance REAL,
	moving_time INTEGER,
	elapsed_time INTEGER,
	total_elevation_gain REAL,
	elev_high REAL,
	elev_low REAL,
	average_speed REAL,
	max_speed REAL,
	average_heartrate REAL,
	max_heartrate REAL,
	average_cadence REAL,
	average_watts REAL,
	weighted_average_watts REAL,
	kilojoules REAL,
	suffer_score INTEGER,
	calories REAL,
	achievement_count INTEGER,
	kudos_count INTEGER,
	comment_count INTEGER,
	athlete_count INTEGER,
	pr_count INTEGER,
	start_latlng TEXT,
	end_latlng TEXT,
	summary_polyline TEXT,
	gear_id TEXT,
	device_name TEXT,
	raw_json TEXT,
	synced_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_type ON activities(type);
CREATE INDEX IF NOT EXISTS idx_sport_type ON activities(sport_type);
CREATE INDEX IF NOT EXISTS idx_start_date ON activities(start_date);
CREATE INDEX IF NOT EXISTS idx_start_date_local ON activities(start_date_local);

CREATE TABLE IF NOT EXISTS sync_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT,
	sync_type TEXT,
	activities_added INTEGER,
	activities_updated INTEGER,
	started_at TEXT,
	completed_at TEXT,
	status TEXT,
	error TEXT
);`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate dataset schema: %w", err)
	}
	return nil
}
