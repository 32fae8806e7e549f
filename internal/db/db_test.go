package db

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func TestBuildDSNForLibsqlAddsToken(t *testing.T) {
	dsn, err := buildDSN("libsql://nelson.example.turso.io", "abc123")
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if dsn != "libsql://nelson.example.turso.io?authToken=abc123" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestBuildDSNForFileURL(t *testing.T) {
	dsn, err := buildDSN("file:local.db", "ignored")
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if dsn != "file:local.db" {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestBuildDSNRejectsEmptyURL(t *testing.T) {
	if _, err := buildDSN("  ", ""); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestDriverFor(t *testing.T) {
	if got := driverFor("file:local.db"); got != "sqlite" {
		t.Fatalf("expected sqlite driver for file url, got %s", got)
	}
	if got := driverFor("libsql://nelson.example.turso.io"); got != "libsql" {
		t.Fatalf("expected libsql driver for remote url, got %s", got)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	for i := 0; i < 2; i++ {
		if err := Migrate(context.Background(), database); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'messages');`).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 tables, got %d", count)
	}
}
