package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/chat"
	"github.com/apkaapna007-a11y/nelson-gpt/internal/db"

	_ "modernc.org/sqlite"
)

func TestIncrementMessageCountRollsDailyCounterOver(t *testing.T) {
	database := newTestDB(t)
	seedUser(t, database, "u1", false)

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	s := NewStore(database).WithClock(func() time.Time { return day1 })

	for i := 0; i < 2; i++ {
		if err := s.IncrementMessageCount(context.Background(), "u1"); err != nil {
			t.Fatalf("increment day1: %v", err)
		}
	}

	usage, err := s.Usage(context.Background(), "u1")
	if err != nil {
		t.Fatalf("read usage: %v", err)
	}
	if usage.MessageCount != 2 || usage.DailyCountOn(day1) != 2 {
		t.Fatalf("unexpected usage after day1: %+v", usage)
	}

	day2 := day1.Add(2 * time.Minute)
	if usage.DailyCountOn(day2) != 0 {
		t.Fatalf("expected stale daily counter to read as zero on the next day, got %d", usage.DailyCountOn(day2))
	}

	s = s.WithClock(func() time.Time { return day2 })
	if err := s.IncrementMessageCount(context.Background(), "u1"); err != nil {
		t.Fatalf("increment day2: %v", err)
	}

	usage, err = s.Usage(context.Background(), "u1")
	if err != nil {
		t.Fatalf("read usage: %v", err)
	}
	if usage.MessageCount != 3 {
		t.Fatalf("expected total counter to keep growing, got %d", usage.MessageCount)
	}
	if usage.DailyCountOn(day2) != 1 {
		t.Fatalf("expected daily counter to restart at 1, got %d", usage.DailyCountOn(day2))
	}
}

func TestIncrementMessageCountUnknownUser(t *testing.T) {
	s := NewStore(newTestDB(t))

	if err := s.IncrementMessageCount(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Usage(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Usage, got %v", err)
	}
}

func TestDeleteMessagesFromRemovesAtAndAfterCutoff(t *testing.T) {
	database := newTestDB(t)
	s := NewStore(database)

	seedMessage(t, database, "m1", "c1", "user", "2026-03-01T10:00:00.000000Z")
	seedMessage(t, database, "m2", "c1", "assistant", "2026-03-01T10:00:05.000000Z")
	seedMessage(t, database, "m3", "c1", "user", "2026-03-01T10:01:00.000000Z")
	seedMessage(t, database, "m4", "c2", "user", "2026-03-01T10:01:00.000000Z")

	cutoff, err := ParseCutoff("2026-03-01T10:00:05Z")
	if err != nil {
		t.Fatalf("parse cutoff: %v", err)
	}

	deleted, err := s.DeleteMessagesFrom(context.Background(), "c1", cutoff)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted rows, got %d", deleted)
	}

	var remaining []string
	rows, err := database.Query(`SELECT id FROM messages ORDER BY id;`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		remaining = append(remaining, id)
	}
	if len(remaining) != 2 || remaining[0] != "m1" || remaining[1] != "m4" {
		t.Fatalf("unexpected remaining messages: %v", remaining)
	}
}

func TestParseCutoffAcceptsFractionalSeconds(t *testing.T) {
	got, err := ParseCutoff("2026-03-01T12:00:00.123+02:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Format(TimestampLayout) != "2026-03-01T10:00:00.123000Z" {
		t.Fatalf("unexpected normalized cutoff: %s", got.Format(TimestampLayout))
	}

	if _, err := ParseCutoff("yesterday"); err == nil {
		t.Fatal("expected error for unparseable cutoff")
	}
}

func TestInsertAndListMessages(t *testing.T) {
	database := newTestDB(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(database).WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})

	if err := s.InsertUserMessage(context.Background(), UserMessage{
		UserID:         "u1",
		ChatID:         "c1",
		Content:        "fever dosing",
		Attachments:    []chat.Attachment{{Name: "chart.png", ContentType: "image/png", URL: "https://files.example/chart.png"}},
		Model:          "clinical",
		MessageGroupID: "g1",
	}); err != nil {
		t.Fatalf("insert user message: %v", err)
	}

	if err := s.StoreAssistantMessage(context.Background(), AssistantMessage{
		UserID: "u1",
		ChatID: "c1",
		Parts: []chat.Part{
			{Type: "reasoning", Reasoning: "weight based"},
			{Type: "text", Text: "Paracetamol 15 mg/kg."},
			{Type: "text", Text: "Repeat every 6 hours."},
		},
		Mode:           chat.ModeClinical,
		MessageGroupID: "g1",
	}); err != nil {
		t.Fatalf("store assistant message: %v", err)
	}

	messages, err := s.ListMessages(context.Background(), "u1", "c1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	user := messages[0]
	if user.Role != "user" || user.Content != "fever dosing" || len(user.Attachments) != 1 || user.MessageGroupID != "g1" {
		t.Fatalf("unexpected user message: %+v", user)
	}

	assistant := messages[1]
	if assistant.Role != "assistant" || assistant.Model != "clinical" {
		t.Fatalf("unexpected assistant message: %+v", assistant)
	}
	if assistant.Content != "Paracetamol 15 mg/kg.\n\nRepeat every 6 hours." {
		t.Fatalf("unexpected assistant content: %q", assistant.Content)
	}
	if len(assistant.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(assistant.Parts))
	}

	others, err := s.ListMessages(context.Background(), "u2", "c1")
	if err != nil {
		t.Fatalf("list other user: %v", err)
	}
	if len(others) != 0 {
		t.Fatalf("expected no messages for another user, got %d", len(others))
	}
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = database.Close() })

	if err := db.Migrate(context.Background(), database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func seedUser(t *testing.T, database *sql.DB, id string, anonymous bool) {
	t.Helper()
	if _, err := database.Exec(`INSERT INTO users (id, email, anonymous) VALUES (?, ?, ?);`, id, id+"@example.com", anonymous); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedMessage(t *testing.T, database *sql.DB, id, chatID, role, createdAt string) {
	t.Helper()
	if _, err := database.Exec(`
INSERT INTO messages (id, chat_id, user_id, role, content, created_at)
VALUES (?, ?, 'u1', ?, ?, ?);
`, id, chatID, role, "content "+id, createdAt); err != nil {
		t.Fatalf("seed message: %v", err)
	}
}
