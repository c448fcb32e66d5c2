// Package chat defines the message model and the transcript store for a
// single assistant session.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a reference attached to an assistant answer (document title,
// portal link, snippet).
type Source struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// IntentOption is a structured next action embedded in an assistant message.
// It is never persisted on its own; its lifecycle matches the containing
// message.
type IntentOption struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	ActionType  string         `json:"actionType"`
	ActionData  map[string]any `json:"actionData,omitempty"`
	IconName    string         `json:"iconName,omitempty"`
}

// Message is one entry in a session transcript. An assistant message created
// as a streaming placeholder keeps its ID for the whole turn and is mutated
// in place until the stream completes or is cancelled.
type Message struct {
	ID             string         `json:"id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	Sources        []Source       `json:"sources,omitempty"`
	IntentOptions  []IntentOption `json:"intentOptions,omitempty"`
	IntentCategory string         `json:"intentCategory,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	ChatHistoryID  string         `json:"chatHistoryId,omitempty"`
}

// NewMessage builds a message with a fresh ID and the given timestamp.
func NewMessage(role Role, content string, ts time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
}

// Before reports whether m sorts ahead of other under the transcript ordering
// law: ascending timestamp, user before assistant on equal timestamps.
func (m Message) Before(other Message) bool {
	if !m.Timestamp.Equal(other.Timestamp) {
		return m.Timestamp.Before(other.Timestamp)
	}
	return m.Role == RoleUser && other.Role == RoleAssistant
}
