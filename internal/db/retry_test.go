package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite" // Register pure-Go SQLite driver for database/sql
)

// testDBCounter ensures unique database names across parallel test runs
var testDBCounter atomic.Int64

// newTestDBForRetry creates an in-memory SQLite database for retry tests.
// This is a simplified version that doesn't use testutil to avoid import cycles.
// Each call creates a unique database to avoid test isolation issues in parallel runs.
func newTestDBForRetry() (*sql.DB, error) {
	dbName := fmt.Sprintf("file:retry_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := sql.Open("sqlite", dbName)
	if err != nil {
		return nil, err
	}

	// Single connection prevents pooling issues with shared in-memory databases
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	_, err = db.Exec(`
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
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func insertTestEvent(db *sql.DB, aggregateID, eventType string) (sql.Result, error) {
	return ExecWithRetry(db, "INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data) VALUES (?, ?, ?, ?)",
		"issue", aggregateID, eventType, "{}")
}

// =============================================================================
// ExecWithRetry tests
// =============================================================================

func TestExecWithRetry_SuccessFirstAttempt(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	result, err := insertTestEvent(db, "42", "SearchStarted")
	if err != nil {
		t.Fatalf("ExecWithRetry failed: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		t.Fatalf("Failed to get rows affected: %v", err)
	}
	if rowsAffected != 1 {
		t.Errorf("Expected 1 row affected, got %d", rowsAffected)
	}
}

func TestExecWithRetry_LastInsertId(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	result, err := insertTestEvent(db, "7", "IssueClosed")
	if err != nil {
		t.Fatalf("ExecWithRetry failed: %v", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to get last insert id: %v", err)
	}
	if lastID <= 0 {
		t.Errorf("Expected positive last insert id, got %d", lastID)
	}
}

func TestExecWithRetry_UpdateOperation(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	if _, err := insertTestEvent(db, "1", "SearchStarted"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := ExecWithRetry(db, "UPDATE events SET event_version = ? WHERE aggregate_id = ?", 2, "1")
	if err != nil {
		t.Fatalf("ExecWithRetry update failed: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		t.Fatalf("Failed to get rows affected: %v", err)
	}
	if rowsAffected != 1 {
		t.Errorf("Expected 1 row affected, got %d", rowsAffected)
	}
}

func TestExecWithRetry_DeleteOperation(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	if _, err := insertTestEvent(db, "9", "SearchStarted"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	result, err := ExecWithRetry(db, "DELETE FROM events WHERE aggregate_id = ?", "9")
	if err != nil {
		t.Fatalf("ExecWithRetry delete failed: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		t.Fatalf("Failed to get rows affected: %v", err)
	}
	if rowsAffected != 1 {
		t.Errorf("Expected 1 row affected, got %d", rowsAffected)
	}
}

func TestExecWithRetry_NonRetryableError(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	// Invalid SQL should fail immediately (not retry)
	_, err = ExecWithRetry(db, "INSERT INTO nonexistent_table (col) VALUES (?)", "value")
	if err == nil {
		t.Fatal("Expected error for non-existent table")
	}

	if strings.Contains(err.Error(), "database busy after") {
		t.Error("Non-retryable error should not go through retry logic")
	}
}

func TestExecWithRetry_SyntaxError(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	_, err = ExecWithRetry(db, "INSER INTO events VALUES (?)", "value")
	if err == nil {
		t.Fatal("Expected error for syntax error")
	}

	if strings.Contains(err.Error(), "database busy after") {
		t.Error("Syntax error should not go through retry logic")
	}
}

func TestExecWithRetry_ConstraintViolation(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	_, err = ExecWithRetry(db, "INSERT INTO events (id, aggregate_type, aggregate_id, event_type) VALUES (?, ?, ?, ?)",
		999, "issue", "1", "SearchStarted")
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Duplicate primary key
	_, err = ExecWithRetry(db, "INSERT INTO events (id, aggregate_type, aggregate_id, event_type) VALUES (?, ?, ?, ?)",
		999, "issue", "2", "SearchStarted")
	if err == nil {
		t.Fatal("Expected error for duplicate primary key")
	}

	if strings.Contains(err.Error(), "database busy after") {
		t.Error("Constraint violation should not go through retry logic")
	}
}

// =============================================================================
// QueryWithRetry tests
// =============================================================================

func TestQueryWithRetry_SuccessFirstAttempt(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	if _, err := insertTestEvent(db, "42", "GrabConfirmed"); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	rows, err := QueryWithRetry(db, "SELECT id, event_type FROM events WHERE aggregate_id = ?", "42")
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()

	if !rows.Next() {
		t.Fatal("Expected at least one row")
	}

	var id int
	var eventType string
	if err := rows.Scan(&id, &eventType); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if eventType != "GrabConfirmed" {
		t.Errorf("Expected event_type=GrabConfirmed, got %s", eventType)
	}
}

func TestQueryWithRetry_EmptyResult(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	rows, err := QueryWithRetry(db, "SELECT id FROM events WHERE aggregate_id = ?", "nonexistent")
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()

	if rows.Next() {
		t.Error("Expected no rows")
	}
}

func TestQueryWithRetry_MultipleRows(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	for i := 1; i <= 3; i++ {
		if _, err := insertTestEvent(db, "5", fmt.Sprintf("Step%d", i)); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	rows, err := QueryWithRetry(db, "SELECT event_type FROM events WHERE aggregate_id = ? ORDER BY id", "5")
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		count++
	}

	if count != 3 {
		t.Errorf("Expected 3 rows, got %d", count)
	}
}

func TestQueryWithRetry_NonRetryableError(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	_, err = QueryWithRetry(db, "SELECT * FROM nonexistent_table")
	if err == nil {
		t.Fatal("Expected error for non-existent table")
	}

	if strings.Contains(err.Error(), "database busy after") {
		t.Error("Non-retryable error should not go through retry logic")
	}
}

func TestQueryWithRetry_ComplexQuery(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	for i := 1; i <= 5; i++ {
		eventType := "SearchStarted"
		if i%2 == 0 {
			eventType = "SearchCompleted"
		}
		if _, err := insertTestEvent(db, fmt.Sprintf("%d", i), eventType); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	rows, err := QueryWithRetry(db,
		"SELECT event_type, COUNT(*) as cnt FROM events GROUP BY event_type ORDER BY event_type")
	if err != nil {
		t.Fatalf("QueryWithRetry failed: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var eventType string
		var cnt int
		if err := rows.Scan(&eventType, &cnt); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		count++
	}

	if count != 2 {
		t.Errorf("Expected 2 groups, got %d", count)
	}
}

// =============================================================================
// Constants tests
// =============================================================================

func TestRetryConstants(t *testing.T) {
	if MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", MaxRetries)
	}

	expectedDelay := 100 * 1_000_000 // 100ms in nanoseconds
	if RetryDelay.Nanoseconds() != int64(expectedDelay) {
		t.Errorf("RetryDelay = %v, want 100ms", RetryDelay)
	}
}

// =============================================================================
// Transaction integration
// =============================================================================

func TestExecWithRetry_TransactionIntegration(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	_, err = ExecWithRetry(db, "BEGIN IMMEDIATE")
	if err != nil {
		t.Fatalf("BEGIN failed: %v", err)
	}

	if _, err := insertTestEvent(db, "tx", "SearchStarted"); err != nil {
		t.Fatalf("INSERT in tx failed: %v", err)
	}

	_, err = ExecWithRetry(db, "COMMIT")
	if err != nil {
		t.Fatalf("COMMIT failed: %v", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM events WHERE aggregate_id = ?", "tx").Scan(&count)
	if err != nil {
		t.Fatalf("Verification query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 row, got %d", count)
	}
}

func TestExecWithRetry_RollbackOperation(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	_, err = ExecWithRetry(db, "BEGIN IMMEDIATE")
	if err != nil {
		t.Fatalf("BEGIN failed: %v", err)
	}

	if _, err := insertTestEvent(db, "rb", "SearchStarted"); err != nil {
		t.Fatalf("INSERT failed: %v", err)
	}

	_, err = ExecWithRetry(db, "ROLLBACK")
	if err != nil {
		t.Fatalf("ROLLBACK failed: %v", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM events WHERE aggregate_id = ?", "rb").Scan(&count)
	if err != nil {
		t.Fatalf("Verification query failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 rows after rollback, got %d", count)
	}
}

// =============================================================================
// Error type verification
// =============================================================================

func TestExecWithRetry_ErrorUnwrapping(t *testing.T) {
	db, err := newTestDBForRetry()
	if err != nil {
		t.Fatalf("Failed to create test db: %v", err)
	}
	defer db.Close()

	_, err = ExecWithRetry(db, "INSERT INTO nonexistent VALUES (?)", 1)
	if err == nil {
		t.Fatal("Expected error")
	}

	if errors.Is(err, sql.ErrNoRows) {
		t.Error("Table not found error should not be sql.ErrNoRows")
	}
}
