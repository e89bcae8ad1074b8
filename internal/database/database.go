// Package database persists trigger events to SQLite.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"scarecrow/internal/region"
	"scarecrow/internal/sink"
)

// Database handles SQLite storage for the trigger event log.
type Database struct {
	db     *sql.DB
	logger *log.Logger
}

// EventRecord is a trigger event as stored in the event log.
type EventRecord struct {
	ID              string          `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	TotalArea       int             `json:"totalArea"`
	Regions         []region.Region `json:"regions"`
	Sensitivity     int             `json:"sensitivity"`
	MinMotionArea   int             `json:"minMotionArea"`
	CooldownSeconds int             `json:"cooldownSeconds"`
}

// New opens (creating if needed) the event log database.
func New(dbPath string, logger *log.Logger) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Database{db: db, logger: logger}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trigger_events (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			total_area INTEGER NOT NULL,
			regions TEXT,
			sensitivity INTEGER,
			min_motion_area INTEGER,
			cooldown_seconds INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trigger_events_time ON trigger_events(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// SaveEvent appends a trigger event to the log.
func (d *Database) SaveEvent(rec *EventRecord) error {
	regions, err := json.Marshal(rec.Regions)
	if err != nil {
		return fmt.Errorf("failed to marshal regions: %w", err)
	}

	query := `INSERT INTO trigger_events
		(id, timestamp, total_area, regions, sensitivity, min_motion_area, cooldown_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = d.db.Exec(query, rec.ID, rec.Timestamp, rec.TotalArea, string(regions),
		rec.Sensitivity, rec.MinMotionArea, rec.CooldownSeconds)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// GetEvent retrieves a single event by ID, nil when not found.
func (d *Database) GetEvent(id string) (*EventRecord, error) {
	query := `SELECT id, timestamp, total_area, regions, sensitivity, min_motion_area, cooldown_seconds
		FROM trigger_events WHERE id = ?`

	var rec EventRecord
	var regions string
	err := d.db.QueryRow(query, id).Scan(&rec.ID, &rec.Timestamp, &rec.TotalArea, &regions,
		&rec.Sensitivity, &rec.MinMotionArea, &rec.CooldownSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if regions != "" {
		if err := json.Unmarshal([]byte(regions), &rec.Regions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal regions: %w", err)
		}
	}
	return &rec, nil
}

// ListEvents returns events newest first, optionally filtered to those after
// since. limit <= 0 means no limit.
func (d *Database) ListEvents(since *time.Time, limit int) ([]*EventRecord, error) {
	query := `SELECT id, timestamp, total_area, regions, sensitivity, min_motion_area, cooldown_seconds
		FROM trigger_events`
	args := []interface{}{}
	if since != nil {
		query += ` WHERE timestamp > ?`
		args = append(args, *since)
	}
	query += ` ORDER BY timestamp DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var records []*EventRecord
	for rows.Next() {
		var rec EventRecord
		var regions string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TotalArea, &regions,
			&rec.Sensitivity, &rec.MinMotionArea, &rec.CooldownSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if regions != "" {
			if err := json.Unmarshal([]byte(regions), &rec.Regions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal regions: %w", err)
			}
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// PruneBefore deletes events older than cutoff and returns how many were
// removed.
func (d *Database) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM trigger_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// Fire implements sink.Sink, appending each trigger to the log.
func (d *Database) Fire(event sink.Event) {
	rec := &EventRecord{
		ID:              event.ID,
		Timestamp:       event.Timestamp,
		TotalArea:       event.TotalArea,
		Regions:         event.Regions,
		Sensitivity:     event.Sensitivity,
		MinMotionArea:   event.MinMotionArea,
		CooldownSeconds: event.CooldownSeconds,
	}
	if err := d.SaveEvent(rec); err != nil && d.logger != nil {
		d.logger.Printf("[Database] failed to persist event %s: %v", event.ID, err)
	}
}
