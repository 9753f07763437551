// Package sqlite persists the history of emitted aim points. The live
// aircraft store and the target selector are purely in-memory; this log
// exists so past sightings survive a restart and can be queried.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skyspot/skyspot/internal/tracker"
	"github.com/skyspot/skyspot/pkg/logger"
)

// Sighting is one recorded aim point.
type Sighting struct {
	ID          int64     `json:"id"`
	Hex         string    `json:"hex"`
	Callsign    string    `json:"callsign,omitempty"`
	AzimuthDeg  *float64  `json:"azimuth_deg,omitempty"`
	AltitudeDeg *float64  `json:"altitude_deg,omitempty"`
	DistanceM   float64   `json:"distance_m"`
	Time        time.Time `json:"time"`
}

// SightingStorage is a SQLite-backed append-only sighting log.
type SightingStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewSightingStorage(dbPath string, log *logger.Logger) (*SightingStorage, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initDatabase(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SightingStorage{db: db, logger: storageLogger}, nil
}

// Close closes the database connection.
func (s *SightingStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func initDatabase(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sightings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hex TEXT NOT NULL,
			callsign TEXT,
			azimuth_deg REAL,
			altitude_deg REAL,
			distance_m REAL NOT NULL,
			seen_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sightings table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sightings_hex ON sightings(hex)`)
	if err != nil {
		return fmt.Errorf("failed to create hex index: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sightings_seen_at ON sightings(seen_at)`)
	if err != nil {
		return fmt.Errorf("failed to create time index: %w", err)
	}
	return nil
}

// RecordAim appends an emitted aim point to the log.
func (s *SightingStorage) RecordAim(ctx context.Context, aim tracker.AimPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sightings (hex, callsign, azimuth_deg, altitude_deg, distance_m, seen_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, aim.Hex, aim.Callsign, aim.AzimuthDeg, aim.AltitudeDeg, aim.DistanceM, aim.Time.UTC())
	if err != nil {
		return fmt.Errorf("failed to record sighting: %w", err)
	}
	return nil
}

// Recent returns the newest sightings, newest first.
func (s *SightingStorage) Recent(ctx context.Context, limit int) ([]Sighting, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hex, callsign, azimuth_deg, altitude_deg, distance_m, seen_at
		FROM sightings
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

// ByAircraft returns the newest sightings of one aircraft, newest first.
func (s *SightingStorage) ByAircraft(ctx context.Context, hex string, limit int) ([]Sighting, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hex, callsign, azimuth_deg, altitude_deg, distance_m, seen_at
		FROM sightings
		WHERE hex = ?
		ORDER BY id DESC
		LIMIT ?
	`, hex, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings for %s: %w", hex, err)
	}
	defer rows.Close()

	return scanSightings(rows)
}

func scanSightings(rows *sql.Rows) ([]Sighting, error) {
	out := make([]Sighting, 0)
	for rows.Next() {
		var sg Sighting
		var callsign sql.NullString
		var azimuth, altitude sql.NullFloat64
		if err := rows.Scan(&sg.ID, &sg.Hex, &callsign, &azimuth, &altitude, &sg.DistanceM, &sg.Time); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		if callsign.Valid {
			sg.Callsign = callsign.String
		}
		if azimuth.Valid {
			sg.AzimuthDeg = &azimuth.Float64
		}
		if altitude.Valid {
			sg.AltitudeDeg = &altitude.Float64
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sightings: %w", err)
	}
	return out, nil
}
