package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/remediarr/remediarr/internal/domain"
	_ "modernc.org/sqlite"
)

// NewTestDB creates an in-memory SQLite database with the Remediarr schema.
// Returns a database handle that should be closed by the caller.
func NewTestDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initializeSchema creates all required tables for testing.
func initializeSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	_, err := db.Exec(`
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL DEFAULT '{}',
			event_version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX idx_events_aggregate ON events(aggregate_type, aggregate_id)`); err != nil {
		return fmt.Errorf("failed to create aggregate index: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX idx_events_type ON events(event_type)`); err != nil {
		return fmt.Errorf("failed to create event_type index: %w", err)
	}

	return nil
}

// SeedEvent inserts a single event directly, bypassing the event bus.
func SeedEvent(db *sql.DB, event domain.Event) (int64, error) {
	eventData, err := json.Marshal(event.EventData)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event data: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version)
		VALUES (?, ?, ?, ?, ?)
	`, event.AggregateType, event.AggregateID, string(event.EventType), string(eventData), event.EventVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return result.LastInsertId()
}

// SeedEvents inserts multiple events in order.
func SeedEvents(db *sql.DB, events []domain.Event) error {
	for _, event := range events {
		if _, err := SeedEvent(db, event); err != nil {
			return err
		}
	}
	return nil
}

// GetEventsByAggregate returns all events for an aggregate id, oldest first.
func GetEventsByAggregate(db *sql.DB, aggregateID string) ([]domain.Event, error) {
	rows, err := db.Query(`
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at
		FROM events WHERE aggregate_id = ? ORDER BY id ASC
	`, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventData string
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &eventData, &e.EventVersion, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(eventData), &e.EventData); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEventsByType returns how many events of the given type exist.
func CountEventsByType(db *sql.DB, eventType domain.EventType) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = ?`, string(eventType)).Scan(&count)
	return count, err
}

// ClearEvents removes all events.
func ClearEvents(db *sql.DB) error {
	_, err := db.Exec(`DELETE FROM events`)
	return err
}
