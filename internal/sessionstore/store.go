// Package sessionstore persists one row per completed session into a
// small embedded sqlite database (spec §9 supplement: stats.json remains
// the authoritative per-session artifact; this store is an additive
// rolling log so an operator can query trend history across many
// sessions on-device without re-parsing JSON files).
//
// Grounded on the teacher's internal/db (modernc.org/sqlite +
// golang-migrate/v4 with an embedded migrations/*.sql filesystem) and
// internal/lidar/analysis_run_manager.go's InsertRun/CompleteRun shape —
// here collapsed to a single insert per finished session, since a
// stereo-tracking session (unlike an analysis run) has no separate
// running-update phase worth persisting.
package sessionstore

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	migsqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/stereotrack/stereotrack/internal/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a sqlite-backed session-history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// migrates it to the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open %s: %w", path, err)
	}
	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("sessionstore: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sessionstore: iofs source: %w", err)
	}
	driver, err := migsqlite.WithInstance(s.db, &migsqlite.Config{})
	if err != nil {
		return fmt.Errorf("sessionstore: sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("sessionstore: migrate instance: %w", err)
	}
	// Note: m.Close() is not called here because the sqlite driver's
	// Close() would close the underlying *sql.DB, which Store owns and
	// closes itself via Close().
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sessionstore: migrate up: %w", err)
	}
	return nil
}

// InsertSession records one completed session's summary.
func (s *Store) InsertSession(id string, summary session.Summary) error {
	statsJSON, err := summary.MarshalStatsJSON()
	if err != nil {
		return fmt.Errorf("sessionstore: marshal summary: %w", err)
	}

	t := summary.Timing
	_, err = s.db.Exec(`
		INSERT INTO sessions (
			id, started_utc, ended_utc, outcome, reason,
			frames_processed, frames_skipped, frames_with_detections, frames_empty, detections_total,
			wall_mean_ms, wall_p50_ms, wall_p95_ms, fps_global,
			jpeg_written, txt_written, drops, stats_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		summary.StartedUTC.UTC().Format("2006-01-02T15:04:05Z"),
		summary.EndedUTC.UTC().Format("2006-01-02T15:04:05Z"),
		string(summary.Outcome),
		summary.Reason,
		summary.Counters.FramesProcessed,
		summary.Counters.FramesSkipped,
		summary.Counters.FramesWithDetections,
		summary.Counters.FramesEmpty,
		summary.Counters.DetectionsTotal,
		nullableFloat(t.WallMean/1e6),
		nullableFloat(t.WallP50/1e6),
		nullableFloat(t.WallP95/1e6),
		fpsGlobal(t.WallMean),
		summary.Writer.JPEGWritten,
		summary.Writer.TXTWritten,
		summary.Writer.Drops,
		string(statsJSON),
	)
	if err != nil {
		return fmt.Errorf("sessionstore: insert session %s: %w", id, err)
	}
	return nil
}

// Row is one sessions table record, for history queries.
type Row struct {
	ID              string
	StartedUTC      string
	EndedUTC        string
	Outcome         string
	Reason          string
	FramesProcessed int
	DetectionsTotal int
}

// Recent returns the most recent limit sessions, newest first.
func (s *Store) Recent(limit int) ([]Row, error) {
	rows, err := s.db.Query(`
		SELECT id, started_utc, ended_utc, outcome, reason, frames_processed, detections_total
		FROM sessions ORDER BY started_utc DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query recent: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.StartedUTC, &r.EndedUTC, &r.Outcome, &r.Reason, &r.FramesProcessed, &r.DetectionsTotal); err != nil {
			return nil, fmt.Errorf("sessionstore: scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func fpsGlobal(wallMeanNs float64) interface{} {
	if wallMeanNs <= 0 {
		return nil
	}
	return 1e9 / wallMeanNs
}
