// Package session bridges the space store's persisted message list with the
// transient buffer held by the chat engine.
//
// Two responsibilities, two directions:
//
//   - replay-on-switch: whenever the current space changes (or its
//     context-reset flag flips), the engine's effective buffer is recomputed
//     from the store — sorted history normally, an empty buffer after a
//     context reset. Display state and effective-context state are computed
//     from different sources on purpose: that split is what makes "forget
//     everything, keep showing it" possible.
//   - append-on-send: outbound messages are persisted to the store before
//     generation is attempted, so a generation failure can never erase a
//     user's input from history.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/chatengine"
	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

// ErrLocalNotReady is returned when a send targets an on-device model that
// is not loaded. The send aborts before any assistant message exists.
var ErrLocalNotReady = errors.New("local model is not ready")

// SendCallbacks receive display-only streaming updates during a send.
// Tokens update a running draft message identified by a pre-allocated id;
// nothing is persisted per token.
//
// OnPersisted fires once, after the outbound message is durably in the store
// and before generation starts, so callers can acknowledge the message ahead
// of any completion tokens.
type SendCallbacks struct {
	OnPersisted func(msg model.Message)
	OnToken     func(messageID, token string, index int) error
	OnComplete  func(msg model.Message)
}

// Adapter is the message synchronizer and streaming session adapter.
type Adapter struct {
	store  *store.Store
	engine chatengine.Engine
	local  chatengine.LocalGenerator
	logger *logger.Logger
}

// New creates an adapter. local may be nil when no on-device runtime is
// available; local sends then fail with ErrLocalNotReady.
func New(st *store.Store, engine chatengine.Engine, local chatengine.LocalGenerator, log *logger.Logger) *Adapter {
	return &Adapter{
		store:  st,
		engine: engine,
		local:  local,
		logger: log,
	}
}

// Replay recomputes the chat engine's effective buffer for a space. With
// context reset the buffer is emptied while the space's own message list is
// left untouched; otherwise the persisted messages are loaded verbatim,
// sorted by timestamp.
func (a *Adapter) Replay(spaceID string) error {
	sp, ok := a.store.Get(spaceID)
	if !ok {
		return store.ErrSpaceNotFound
	}

	if sp.Metadata.ContextReset {
		a.engine.SetMessages(nil)
		return nil
	}
	a.engine.SetMessages(model.SortMessages(sp.Messages))
	return nil
}

// Run consumes store events until the context is done or the store closes,
// replaying whenever the current space changes or the current space's
// context is reset.
func (a *Adapter) Run(ctx context.Context) {
	events := a.store.Subscribe(32)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch evt.Type {
			case model.EventCurrentChanged:
				if err := a.Replay(evt.SpaceID); err != nil {
					a.logger.Error("replay on switch failed",
						zap.String("space_id", evt.SpaceID), zap.Error(err))
				}
			case model.EventContextReset:
				if evt.SpaceID == a.store.CurrentID() {
					if err := a.Replay(evt.SpaceID); err != nil {
						a.logger.Error("replay after context reset failed",
							zap.String("space_id", evt.SpaceID), zap.Error(err))
					}
				}
			}
		}
	}
}

// AppendWithPersist persists an outbound message and drives generation.
//
// User messages are persisted first, then dispatched to the on-device or
// remote path per the resolved model variant. Non-user messages (programmatic
// activation turns) go through the same persistence path but are marked
// hidden: excluded from display, still part of the effective context.
//
// The completion, when one arrives, is persisted to the message's owning
// space even if the current space has changed in the meantime.
func (a *Adapter) AppendWithPersist(ctx context.Context, req model.SendMessageRequest, cb SendCallbacks) (model.Message, error) {
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}

	msg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   req.Content,
		CreatedAt: time.Now(),
		Hidden:    role != model.RoleUser,
	}

	// Persist before generation. AddMessage self-heals when no current
	// space exists; the message is never dropped.
	sp, err := a.store.AddMessage(msg)
	if err != nil {
		return model.Message{}, fmt.Errorf("failed to persist message: %w", err)
	}
	if cb.OnPersisted != nil {
		cb.OnPersisted(msg)
	}

	if role != model.RoleUser {
		// Context-only: extend the engine buffer without generating.
		a.engine.SetMessages(append(a.engine.Messages(), msg))
		return msg, nil
	}

	ref := model.ResolveModel(req.Model)
	if ref.IsLocal() {
		return msg, a.sendLocal(ctx, sp.ID, msg, ref, cb)
	}
	return msg, a.sendRemote(ctx, sp.ID, msg, ref, cb)
}

func (a *Adapter) sendRemote(ctx context.Context, spaceID string, msg model.Message, ref model.ModelRef, cb SendCallbacks) error {
	completionID := uuid.Must(uuid.NewV7()).String()

	return a.engine.Append(ctx, msg, chatengine.AppendOptions{
		SpaceID:      spaceID,
		Model:        ref.ID,
		CompletionID: completionID,
		OnToken: func(token string, index int) error {
			if cb.OnToken != nil {
				return cb.OnToken(completionID, token, index)
			}
			return nil
		},
		OnFinish: func(assistant model.Message) {
			if err := a.store.AddMessageTo(spaceID, assistant); err != nil {
				a.logger.Error("failed to persist completion",
					zap.String("space_id", spaceID),
					zap.String("message_id", assistant.ID),
					zap.Error(err),
				)
				return
			}
			if cb.OnComplete != nil {
				cb.OnComplete(assistant)
			}
		},
	})
}

// sendLocal streams from the on-device generator. Tokens update the
// display-only draft; persistence happens once, on completion, with the
// final text. If the generator fails after emitting text, the partial text
// is persisted so the user keeps what they saw.
func (a *Adapter) sendLocal(ctx context.Context, spaceID string, msg model.Message, ref model.ModelRef, cb SendCallbacks) error {
	if a.local == nil || !a.local.Ready() {
		return ErrLocalNotReady
	}

	history := append(a.engine.Messages(), msg)
	a.engine.SetMessages(history)

	draftID := uuid.Must(uuid.NewV7()).String()
	var accumulated string
	index := 0

	finish := func(text string) model.Message {
		assistant := model.Message{
			ID:        draftID,
			Role:      model.RoleAssistant,
			Content:   text,
			CreatedAt: time.Now(),
			Model:     ref.ID,
		}
		if err := a.store.AddMessageTo(spaceID, assistant); err != nil {
			a.logger.Error("failed to persist local completion",
				zap.String("space_id", spaceID),
				zap.String("message_id", draftID),
				zap.Error(err),
			)
		}
		a.engine.SetMessages(append(a.engine.Messages(), assistant))
		return assistant
	}

	err := a.local.Generate(ctx, history,
		func(text, delta string) {
			accumulated = text
			if cb.OnToken != nil {
				_ = cb.OnToken(draftID, delta, index)
			}
			index++
		},
		func(text string) {
			assistant := finish(text)
			if cb.OnComplete != nil {
				cb.OnComplete(assistant)
			}
		},
	)
	if err != nil {
		if accumulated != "" {
			finish(accumulated)
		}
		return fmt.Errorf("local generation failed: %w", err)
	}
	return nil
}

// ActivateMode persists a hidden system message describing a mode switch and
// asks the engine to regenerate so the activation takes effect.
func (a *Adapter) ActivateMode(ctx context.Context, mode, modelID string, cb SendCallbacks) error {
	sp, ok := a.store.Current()
	if !ok {
		return store.ErrSpaceNotFound
	}
	if err := a.store.SetStudyMode(sp.ID, mode); err != nil {
		return err
	}

	activation := model.SendMessageRequest{
		Content: fmt.Sprintf("Activate %s mode for this conversation.", mode),
		Role:    model.RoleSystem,
		Model:   modelID,
	}
	if _, err := a.AppendWithPersist(ctx, activation, SendCallbacks{}); err != nil {
		return err
	}

	ref := model.ResolveModel(modelID)
	completionID := uuid.Must(uuid.NewV7()).String()
	return a.engine.Reload(ctx, chatengine.AppendOptions{
		SpaceID:      sp.ID,
		Model:        ref.ID,
		CompletionID: completionID,
		OnToken: func(token string, index int) error {
			if cb.OnToken != nil {
				return cb.OnToken(completionID, token, index)
			}
			return nil
		},
		OnFinish: func(assistant model.Message) {
			if err := a.store.AddMessageTo(sp.ID, assistant); err != nil {
				a.logger.Error("failed to persist activation completion",
					zap.String("space_id", sp.ID), zap.Error(err))
				return
			}
			if cb.OnComplete != nil {
				cb.OnComplete(assistant)
			}
		},
	})
}

// Stop cancels in-flight remote generation. The local branch exposes no
// cancel path.
func (a *Adapter) Stop() {
	a.engine.Stop()
}
