package model

import (
	"sort"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single message within a space.
//
// Hidden messages are excluded from the display view but remain persisted and
// remain part of the effective context sent to the model.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Hidden    bool      `json:"hidden,omitempty"`
	Model     string    `json:"model,omitempty"`
}

// SortMessages orders messages by timestamp, oldest first. Append order is
// not necessarily chronological, so callers sort before display or replay.
func SortMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// VisibleMessages returns the display view: non-hidden messages sorted by
// timestamp.
func VisibleMessages(msgs []Message) []Message {
	sorted := SortMessages(msgs)
	out := sorted[:0:0]
	for _, m := range sorted {
		if !m.Hidden {
			out = append(out, m)
		}
	}
	return out
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Role    Role   `json:"role,omitempty"`
}

// ListMessagesResponse is the response for listing a space's messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
}

// TokenEvent represents a streaming token event.
type TokenEvent struct {
	MessageID string `json:"message_id"`
	Token     string `json:"token"`
	Index     int    `json:"index"`
}

// MessageCompleteEvent represents a message completion event.
type MessageCompleteEvent struct {
	Message Message `json:"message"`
}

// ErrorEvent represents an error event on a stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
