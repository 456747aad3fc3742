package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM subscriptions").Scan(&count)
	if err != nil {
		t.Errorf("query failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"subscriptions", "feeds"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_SetsSchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, expected %d", version, currentSchemaVersion)
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestOpen_MigratesVersion1Database(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v1.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE subscriptions (
			id TEXT PRIMARY KEY, hub TEXT NOT NULL, topic TEXT NOT NULL,
			feed_id TEXT NOT NULL, verified INTEGER NOT NULL DEFAULT 0,
			verify_token TEXT NOT NULL DEFAULT '', lease_expires INTEGER NOT NULL,
			active INTEGER NOT NULL DEFAULT 1, denied_reason TEXT NOT NULL DEFAULT '',
			last_status INTEGER NOT NULL DEFAULT 0, created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL, UNIQUE(hub, topic), UNIQUE(feed_id)
		);
		INSERT INTO subscriptions (id, hub, topic, feed_id, lease_expires, created_at, updated_at)
		VALUES ('old', 'https://hub.example/', 'https://feed.example/old', 'feed-old', 1, 1, 1);
		PRAGMA user_version = 1;
	`); err != nil {
		t.Fatalf("seed v1 schema: %v", err)
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() on v1 database: %v", err)
	}
	defer s.Close()

	if !contains(getTableColumns(t, s.db, "subscriptions"), "lease_seconds") {
		t.Fatal("migration did not add lease_seconds")
	}
	sub, err := s.FindByID(context.Background(), "old")
	if err != nil {
		t.Fatalf("FindByID after migration: %v", err)
	}
	if sub.LeaseSeconds != 0 {
		t.Errorf("LeaseSeconds = %d, expected 0 for migrated row", sub.LeaseSeconds)
	}
}

func TestPragma_JournalMode(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_Synchronous(t *testing.T) {
	s := createTestStore(t)
	// NORMAL = 1
	if err := s.verifyPragma("synchronous", "1"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	s := createTestStore(t)
	if err := s.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestSchema_SubscriptionsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "subscriptions")
	expected := []string{
		"id", "hub", "topic", "feed_id", "verified", "verify_token", "lease_expires",
		"lease_seconds", "active", "denied_reason", "last_status", "created_at", "updated_at",
	}
	for _, col := range expected {
		if !contains(columns, col) {
			t.Errorf("subscriptions table missing column %q", col)
		}
	}
}

func TestSchema_FeedsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "feeds")
	for _, col := range []string{"id", "url", "push_enabled", "subscription_id"} {
		if !contains(columns, col) {
			t.Errorf("feeds table missing column %q", col)
		}
	}
}

func TestSchema_LeaseIndex(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "subscriptions")
	if !contains(indexes, "idx_subscriptions_lease") {
		t.Error("subscriptions table missing index idx_subscriptions_lease")
	}
}

func TestConstraint_UniqueHubTopic(t *testing.T) {
	s := createTestStore(t)

	insert := `
		INSERT INTO subscriptions (id, hub, topic, feed_id, lease_expires, created_at, updated_at)
		VALUES (?, 'https://hub.example/', 'https://feed.example/rss', ?, 0, 0, 0)
	`
	if _, err := s.db.Exec(insert, "sub-1", "feed-1"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := s.db.Exec(insert, "sub-2", "feed-2"); err == nil {
		t.Error("expected UNIQUE(hub, topic) violation, got nil")
	}
}

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
