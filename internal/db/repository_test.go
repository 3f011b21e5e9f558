package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/remediarr/remediarr/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func insertEvent(t *testing.T, repo *Repository, aggregateType, aggregateID, eventType string) {
	t.Helper()
	_, err := ExecWithRetry(repo.DB,
		"INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at) VALUES (?, ?, ?, ?, 1, ?)",
		aggregateType, aggregateID, eventType, `{"issue_id": 42}`, time.Now().UTC())
	if err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}
}

func TestNewRepositoryCreatesSchema(t *testing.T) {
	repo := newTestRepository(t)

	var name string
	err := repo.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events'").Scan(&name)
	if err != nil {
		t.Fatalf("events table not created: %v", err)
	}
	if name != "events" {
		t.Errorf("Expected table name 'events', got %s", name)
	}
}

func TestNewRepositoryCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	defer repo.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Errorf("Database directory not created: %v", err)
	}
}

func TestNewRepositoryWALMode(t *testing.T) {
	repo := newTestRepository(t)

	var mode string
	if err := repo.DB.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("Failed to read journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected journal_mode=wal, got %s", mode)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	repo1, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("First open failed: %v", err)
	}
	insertEvent(t, repo1, "issue", "42", "SearchStarted")
	if err := repo1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening must not re-run migrations or lose data
	repo2, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("Second open failed: %v", err)
	}
	defer repo2.Close()

	count, err := repo2.CountEvents(EventFilter{})
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 event after reopen, got %d", count)
	}
}

func TestListEventsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)

	insertEvent(t, repo, "issue", "1", "SearchStarted")
	insertEvent(t, repo, "issue", "1", "SearchCompleted")
	insertEvent(t, repo, "issue", "2", "IssueIgnored")

	events, err := repo.ListEvents(EventFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].EventType != domain.EventType("IssueIgnored") {
		t.Errorf("Expected newest event first, got %s", events[0].EventType)
	}
}

func TestListEventsFilters(t *testing.T) {
	repo := newTestRepository(t)

	insertEvent(t, repo, "issue", "1", "SearchStarted")
	insertEvent(t, repo, "issue", "2", "SearchStarted")
	insertEvent(t, repo, "delivery", "abc", "WebhookReceived")

	tests := []struct {
		name   string
		filter EventFilter
		want   int
	}{
		{"no filter", EventFilter{}, 3},
		{"by aggregate type", EventFilter{AggregateType: "issue"}, 2},
		{"by aggregate id", EventFilter{AggregateType: "issue", AggregateID: "1"}, 1},
		{"by event type", EventFilter{EventType: "WebhookReceived"}, 1},
		{"no match", EventFilter{EventType: "Nonexistent"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := repo.ListEvents(tt.filter, 10, 0)
			if err != nil {
				t.Fatalf("ListEvents failed: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("Expected %d events, got %d", tt.want, len(events))
			}

			count, err := repo.CountEvents(tt.filter)
			if err != nil {
				t.Fatalf("CountEvents failed: %v", err)
			}
			if count != int64(tt.want) {
				t.Errorf("CountEvents: expected %d, got %d", tt.want, count)
			}
		})
	}
}

func TestListEventsPagination(t *testing.T) {
	repo := newTestRepository(t)

	for i := 0; i < 5; i++ {
		insertEvent(t, repo, "issue", "1", "SearchStarted")
	}

	page1, err := repo.ListEvents(EventFilter{}, 2, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(page1) != 2 {
		t.Errorf("Expected 2 events on page 1, got %d", len(page1))
	}

	page3, err := repo.ListEvents(EventFilter{}, 2, 4)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(page3) != 1 {
		t.Errorf("Expected 1 event on page 3, got %d", len(page3))
	}
}

func TestEventsForAggregateInsertionOrder(t *testing.T) {
	repo := newTestRepository(t)

	insertEvent(t, repo, "issue", "42", "IssueClassified")
	insertEvent(t, repo, "issue", "42", "SearchStarted")
	insertEvent(t, repo, "issue", "42", "SearchCompleted")
	insertEvent(t, repo, "issue", "7", "IssueIgnored")

	events, err := repo.EventsForAggregate("issue", "42")
	if err != nil {
		t.Fatalf("EventsForAggregate failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].EventType != domain.EventType("IssueClassified") {
		t.Errorf("Expected oldest event first, got %s", events[0].EventType)
	}
	if events[2].EventType != domain.EventType("SearchCompleted") {
		t.Errorf("Expected newest event last, got %s", events[2].EventType)
	}
}

func TestEventDataRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	insertEvent(t, repo, "issue", "42", "SearchStarted")

	events, err := repo.ListEvents(EventFilter{}, 1, 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}

	id, ok := events[0].GetInt64("issue_id")
	if !ok || id != 42 {
		t.Errorf("Expected event_data issue_id=42, got %d (ok=%v)", id, ok)
	}
}

func TestRunMaintenancePrunesOldEvents(t *testing.T) {
	repo := newTestRepository(t)

	old := time.Now().UTC().AddDate(0, 0, -100).Format(time.RFC3339)
	_, err := repo.DB.Exec(
		"INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, created_at) VALUES (?, ?, ?, ?, ?)",
		"issue", "old", "SearchStarted", "{}", old)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	insertEvent(t, repo, "issue", "new", "SearchStarted")

	if err := repo.RunMaintenance(90); err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}

	count, err := repo.CountEvents(EventFilter{})
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 event after pruning, got %d", count)
	}
}

func TestRunMaintenanceZeroRetentionKeepsEverything(t *testing.T) {
	repo := newTestRepository(t)

	old := time.Now().UTC().AddDate(0, 0, -1000).Format(time.RFC3339)
	_, err := repo.DB.Exec(
		"INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, created_at) VALUES (?, ?, ?, ?, ?)",
		"issue", "ancient", "SearchStarted", "{}", old)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := repo.RunMaintenance(0); err != nil {
		t.Fatalf("RunMaintenance failed: %v", err)
	}

	count, _ := repo.CountEvents(EventFilter{})
	if count != 1 {
		t.Errorf("Expected event retained with retention=0, got count %d", count)
	}
}

func TestGracefulClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	insertEvent(t, repo, "issue", "1", "SearchStarted")

	if err := repo.GracefulClose(); err != nil {
		t.Fatalf("GracefulClose failed: %v", err)
	}

	// Data must survive the checkpoint + close
	repo2, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer repo2.Close()

	count, _ := repo2.CountEvents(EventFilter{})
	if count != 1 {
		t.Errorf("Expected 1 event after graceful close, got %d", count)
	}
}

func TestCheckpoint(t *testing.T) {
	repo := newTestRepository(t)
	insertEvent(t, repo, "issue", "1", "SearchStarted")

	if err := repo.Checkpoint(); err != nil {
		t.Errorf("Checkpoint failed: %v", err)
	}
}

func TestGetDatabaseStats(t *testing.T) {
	repo := newTestRepository(t)
	insertEvent(t, repo, "issue", "1", "SearchStarted")

	stats, err := repo.GetDatabaseStats()
	if err != nil {
		t.Fatalf("GetDatabaseStats failed: %v", err)
	}

	if stats["journal_mode"] != "wal" {
		t.Errorf("Expected journal_mode=wal, got %v", stats["journal_mode"])
	}
	if count, ok := stats["event_count"].(int64); !ok || count != 1 {
		t.Errorf("Expected event_count=1, got %v", stats["event_count"])
	}
	if size, ok := stats["size_bytes"].(int64); !ok || size <= 0 {
		t.Errorf("Expected positive size_bytes, got %v", stats["size_bytes"])
	}
}

func TestBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	repo, err := NewRepository(dbPath)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}
	defer repo.Close()

	insertEvent(t, repo, "issue", "1", "SearchStarted")

	backupPath, err := repo.Backup(dbPath)
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("Backup file missing: %v", err)
	}

	// Backup must be a valid database with the data intact
	backupRepo, err := NewRepository(backupPath)
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer backupRepo.Close()

	count, _ := backupRepo.CountEvents(EventFilter{})
	if count != 1 {
		t.Errorf("Expected 1 event in backup, got %d", count)
	}
}
