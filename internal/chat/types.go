// Package chat holds the conversation types and the pure pieces of the chat
// pipeline: mode selection, prompt composition and the error taxonomy.
package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	URL         string `json:"url"`
}

type Message struct {
	ID          string       `json:"id,omitempty"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"experimental_attachments,omitempty"`
	CreatedAt   *time.Time   `json:"createdAt,omitempty"`
}

// Turn is one inbound request of a conversation. It is never persisted as a
// unit.
type Turn struct {
	Messages            []Message `json:"messages"`
	ChatID              string    `json:"chatId"`
	UserID              string    `json:"userId"`
	Model               string    `json:"model"`
	IsAuthenticated     bool      `json:"isAuthenticated"`
	SystemPrompt        string    `json:"systemPrompt"`
	EnableSearch        bool      `json:"enableSearch"`
	MessageGroupID      string    `json:"message_group_id,omitempty"`
	EditCutoffTimestamp string    `json:"editCutoffTimestamp,omitempty"`
}

// LastMessage returns the newest message of the turn.
func (t Turn) LastMessage() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Part is one element of a persisted assistant reply.
type Part struct {
	Type      string  `json:"type"`
	Text      string  `json:"text,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
	Source    *Source `json:"source,omitempty"`
}

type Source struct {
	SourceType string `json:"sourceType"`
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
}
