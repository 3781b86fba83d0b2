package model

import (
	"time"
)

// EventType classifies a store change event.
type EventType string

const (
	EventSpaceCreated   EventType = "space_created"
	EventSpaceDeleted   EventType = "space_deleted"
	EventSpaceArchived  EventType = "space_archived"
	EventSpaceRenamed   EventType = "space_renamed"
	EventSpacePinned    EventType = "space_pinned"
	EventCurrentChanged EventType = "current_changed"
	EventMessageAdded   EventType = "message_added"
	EventContextReset   EventType = "context_reset"
)

// StoreEvent is emitted by the space store after each committed transition.
// Subscribers (the session adapter, the naming engine, the NATS bridge) react
// to these instead of polling store state.
type StoreEvent struct {
	Type       EventType `json:"type"`
	SpaceID    string    `json:"space_id"`
	NotebookID string    `json:"notebook_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
