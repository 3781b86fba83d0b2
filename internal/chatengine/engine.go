// Package chatengine defines the streaming chat engine contract the
// synchronization core drives, and a remote implementation backed by an LLM
// provider client.
//
// The engine owns the transient "effective context" buffer: the message list
// sent to the model on the next generation. The space store owns persisted
// history; the two are reconciled by the sync package, never by the engine.
package chatengine

import (
	"context"

	"github.com/lumenote-ai/notebook-platform/internal/model"
)

// Status is the engine's externally visible state.
type Status string

const (
	StatusReady     Status = "ready"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// AppendOptions carries per-generation parameters.
type AppendOptions struct {
	// SpaceID is the owning space for the eventual completion. Completions
	// are delivered against this id even if the current space has changed by
	// the time generation finishes.
	SpaceID string

	// Model is the provider model identifier.
	Model string

	// CompletionID, when set, is the pre-allocated identifier for the
	// assistant message. Sharing the id between the display-only draft and
	// the persisted completion lets the store reconcile the two by
	// replacement instead of duplication.
	CompletionID string

	// OnToken receives streamed tokens. Optional.
	OnToken func(token string, index int) error

	// OnFinish receives the completed assistant message. Optional.
	OnFinish func(msg model.Message)
}

// Engine is the streaming chat engine contract.
type Engine interface {
	// Append enqueues a message into the effective buffer and generates a
	// response for it.
	Append(ctx context.Context, msg model.Message, opts AppendOptions) error

	// SetMessages replaces the effective buffer. Used for replay-on-switch
	// and for context reset (an empty list).
	SetMessages(msgs []model.Message)

	// Messages returns a copy of the effective buffer.
	Messages() []model.Message

	// Reload regenerates the last response from the current buffer.
	Reload(ctx context.Context, opts AppendOptions) error

	// Stop cancels an in-flight generation.
	Stop()

	// Status reports the engine state. Read by the core, owned by the engine.
	Status() Status
}
