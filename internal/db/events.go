package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/remediarr/remediarr/internal/domain"
)

// EventFilter narrows event queries. Zero values mean "no filter".
type EventFilter struct {
	AggregateType string
	AggregateID   string
	EventType     string
}

func (f EventFilter) whereClause() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.AggregateType != "" {
		conds = append(conds, "aggregate_type = ?")
		args = append(args, f.AggregateType)
	}
	if f.AggregateID != "" {
		conds = append(conds, "aggregate_id = ?")
		args = append(args, f.AggregateID)
	}
	if f.EventType != "" {
		conds = append(conds, "event_type = ?")
		args = append(args, f.EventType)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListEvents returns events matching the filter, newest first.
func (r *Repository) ListEvents(filter EventFilter, limit, offset int) ([]domain.Event, error) {
	where, args := filter.whereClause()
	query := "SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at FROM events" +
		where + " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := QueryWithRetry(r.DB, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// CountEvents returns the number of events matching the filter.
func (r *Repository) CountEvents(filter EventFilter) (int64, error) {
	where, args := filter.whereClause()
	var count int64
	err := r.DB.QueryRow("SELECT COUNT(*) FROM events"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// EventsForAggregate returns the full event history of one aggregate in
// insertion order.
func (r *Repository) EventsForAggregate(aggregateType, aggregateID string) ([]domain.Event, error) {
	rows, err := QueryWithRetry(r.DB, `
        SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at
        FROM events
        WHERE aggregate_type = ? AND aggregate_id = ?
        ORDER BY id ASC
    `, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregate events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var event domain.Event
	var dataJSON string
	if err := rows.Scan(&event.ID, &event.AggregateType, &event.AggregateID, &event.EventType,
		&dataJSON, &event.EventVersion, &event.CreatedAt); err != nil {
		return domain.Event{}, fmt.Errorf("failed to scan event: %w", err)
	}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &event.EventData); err != nil {
			return domain.Event{}, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
	}
	return event, nil
}
