package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apkaapna007-a11y/nelson-gpt/internal/chat"

	"github.com/google/uuid"
)

// TimestampLayout is fixed width so created_at compares correctly as text.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

const dateLayout = "2006-01-02"

var ErrNotFound = errors.New("user not found")

type Usage struct {
	UserID            string
	Anonymous         bool
	MessageCount      int
	DailyMessageCount int
	DailyReset        string
}

// DailyCountOn returns the daily counter as seen on day, treating a counter
// last reset on an earlier day as zero.
func (u Usage) DailyCountOn(day time.Time) int {
	if u.DailyReset != day.UTC().Format(dateLayout) {
		return 0
	}
	return u.DailyMessageCount
}

type UserMessage struct {
	UserID         string
	ChatID         string
	Content        string
	Attachments    []chat.Attachment
	Model          string
	MessageGroupID string
}

type AssistantMessage struct {
	UserID         string
	ChatID         string
	Parts          []chat.Part
	Mode           chat.Mode
	MessageGroupID string
}

type StoredMessage struct {
	ID             string            `json:"id"`
	ChatID         string            `json:"chatId"`
	Role           string            `json:"role"`
	Content        string            `json:"content"`
	Attachments    []chat.Attachment `json:"experimental_attachments,omitempty"`
	Parts          []chat.Part       `json:"parts,omitempty"`
	Model          string            `json:"model,omitempty"`
	MessageGroupID string            `json:"messageGroupId,omitempty"`
	CreatedAt      string            `json:"createdAt"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock returns a copy of s stamping rows with now.
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{db: s.db, now: now}
}

func (s *Store) Usage(ctx context.Context, userID string) (Usage, error) {
	query := `
SELECT id, anonymous, message_count, daily_message_count, COALESCE(daily_reset, '')
FROM users
WHERE id = ?
LIMIT 1;
`

	var out Usage
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&out.UserID,
		&out.Anonymous,
		&out.MessageCount,
		&out.DailyMessageCount,
		&out.DailyReset,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Usage{}, ErrNotFound
	}
	if err != nil {
		return Usage{}, fmt.Errorf("read usage: %w", err)
	}
	return out, nil
}

// IncrementMessageCount bumps the total and daily counters in one statement,
// restarting the daily counter when the stored reset day is not today.
func (s *Store) IncrementMessageCount(ctx context.Context, userID string) error {
	now := s.now().UTC()
	today := now.Format(dateLayout)

	result, err := s.db.ExecContext(ctx, `
UPDATE users SET
  message_count = message_count + 1,
  daily_message_count = CASE WHEN daily_reset = ? THEN daily_message_count + 1 ELSE 1 END,
  daily_reset = ?,
  last_active_at = ?
WHERE id = ?;
`, today, today, now.Format(TimestampLayout), userID)
	if err != nil {
		return fmt.Errorf("increment message count: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMessagesFrom removes every message of chatID created at or after
// cutoff and returns the number of rows removed.
func (s *Store) DeleteMessagesFrom(ctx context.Context, chatID string, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ? AND created_at >= ?;`, chatID, cutoff.UTC().Format(TimestampLayout))
	if err != nil {
		return 0, fmt.Errorf("delete messages from cutoff: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (s *Store) InsertUserMessage(ctx context.Context, msg UserMessage) error {
	attachments, err := encodeOptionalJSON(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	return s.insert(ctx, insertParams{
		userID:         msg.UserID,
		chatID:         msg.ChatID,
		role:           chat.RoleUser,
		content:        msg.Content,
		attachments:    attachments,
		model:          msg.Model,
		messageGroupID: msg.MessageGroupID,
	})
}

// StoreAssistantMessage writes the whole finished reply as one row: text
// parts joined into content, every part kept in parts.
func (s *Store) StoreAssistantMessage(ctx context.Context, msg AssistantMessage) error {
	parts, err := encodeOptionalJSON(msg.Parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}

	texts := make([]string, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		if part.Type == "text" && strings.TrimSpace(part.Text) != "" {
			texts = append(texts, part.Text)
		}
	}

	return s.insert(ctx, insertParams{
		userID:         msg.UserID,
		chatID:         msg.ChatID,
		role:           chat.RoleAssistant,
		content:        strings.Join(texts, "\n\n"),
		parts:          parts,
		model:          string(msg.Mode),
		messageGroupID: msg.MessageGroupID,
	})
}

func (s *Store) ListMessages(ctx context.Context, userID, chatID string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, chat_id, role, content, COALESCE(attachments, ''), COALESCE(parts, ''), COALESCE(model, ''), COALESCE(message_group_id, ''), created_at
FROM messages
WHERE chat_id = ? AND user_id = ?
ORDER BY created_at ASC, rowid ASC;
`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]StoredMessage, 0, 16)
	for rows.Next() {
		var (
			msg         StoredMessage
			attachments string
			parts       string
		)
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &attachments, &parts, &msg.Model, &msg.MessageGroupID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if attachments != "" {
			if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("decode attachments of %s: %w", msg.ID, err)
			}
		}
		if parts != "" {
			if err := json.Unmarshal([]byte(parts), &msg.Parts); err != nil {
				return nil, fmt.Errorf("decode parts of %s: %w", msg.ID, err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

type insertParams struct {
	userID         string
	chatID         string
	role           string
	content        string
	attachments    any
	parts          any
	model          string
	messageGroupID string
}

func (s *Store) insert(ctx context.Context, p insertParams) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages (id, chat_id, user_id, role, content, attachments, parts, model, message_group_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
		uuid.NewString(),
		p.chatID,
		nullIfEmpty(p.userID),
		p.role,
		p.content,
		p.attachments,
		p.parts,
		nullIfEmpty(p.model),
		nullIfEmpty(p.messageGroupID),
		s.now().UTC().Format(TimestampLayout),
	)
	if err != nil {
		return fmt.Errorf("insert %s message: %w", p.role, err)
	}
	return nil
}

// ParseCutoff accepts RFC 3339 timestamps with or without fractional seconds.
func ParseCutoff(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cutoff %q: %w", trimmed, err)
	}
	return parsed.UTC(), nil
}

func encodeOptionalJSON[T any](items []T) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
