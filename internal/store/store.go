// Package store persists observation history and slot fulfillments in
// SQLite. The store is an optional collaborator: the engine runs fully
// without it, losing only history and fulfillment durability.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dmarkov/weather-notify/internal/models"
)

// SQLiteStore wraps a SQLite database holding observation history and
// slot fulfillment timestamps.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and
// initializes the schema. Use ":memory:" for tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			location_id TEXT NOT NULL,
			temperature REAL NOT NULL,
			feels_like REAL NOT NULL,
			humidity INTEGER NOT NULL,
			wind_speed REAL NOT NULL,
			description TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_observations_location_fetched
			ON observations (location_id, fetched_at DESC);
		CREATE TABLE IF NOT EXISTS slot_fulfillments (
			slot_key TEXT PRIMARY KEY,
			fulfilled_at TIMESTAMP NOT NULL
		);
	`)
	return err
}

// SaveObservation appends an observation to the history for a location.
func (s *SQLiteStore) SaveObservation(ctx context.Context, locationID string, obs models.Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (location_id, temperature, feels_like, humidity, wind_speed, description, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		locationID, obs.Temperature, obs.FeelsLike, obs.Humidity, obs.WindSpeed, obs.Description, obs.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save observation for %s: %w", locationID, err)
	}
	return nil
}

// LatestObservation returns the most recent stored observation for a
// location, or false if none exists.
func (s *SQLiteStore) LatestObservation(ctx context.Context, locationID string) (models.Observation, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT temperature, feels_like, humidity, wind_speed, description, fetched_at
		FROM observations
		WHERE location_id = ?
		ORDER BY fetched_at DESC
		LIMIT 1`,
		locationID,
	)
	var obs models.Observation
	err := row.Scan(&obs.Temperature, &obs.FeelsLike, &obs.Humidity, &obs.WindSpeed, &obs.Description, &obs.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Observation{}, false, nil
	}
	if err != nil {
		return models.Observation{}, false, fmt.Errorf("latest observation for %s: %w", locationID, err)
	}
	return obs, true, nil
}

// SaveFulfillment records the last successful dispatch instant for a slot,
// replacing any previous value. slotKey is the slot's "HH:MM" form.
func (s *SQLiteStore) SaveFulfillment(ctx context.Context, slotKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slot_fulfillments (slot_key, fulfilled_at) VALUES (?, ?)
		ON CONFLICT(slot_key) DO UPDATE SET fulfilled_at = excluded.fulfilled_at`,
		slotKey, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save fulfillment for %s: %w", slotKey, err)
	}
	return nil
}

// Fulfillments returns the persisted fulfillment instant per slot key.
// Used at startup so a restart inside a grace window does not re-dispatch
// an already-serviced slot.
func (s *SQLiteStore) Fulfillments(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot_key, fulfilled_at FROM slot_fulfillments`)
	if err != nil {
		return nil, fmt.Errorf("load fulfillments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var at time.Time
		if err := rows.Scan(&key, &at); err != nil {
			return nil, fmt.Errorf("scan fulfillment: %w", err)
		}
		out[key] = at
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
