package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/middleware"
	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/session"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
	"github.com/lumenote-ai/notebook-platform/pkg/metrics"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	store   *store.Store
	adapter *session.Adapter
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(st *store.Store, adapter *session.Adapter, log *logger.Logger) *MessageHandler {
	return &MessageHandler{store: st, adapter: adapter, logger: log}
}

// List handles GET /api/v1/spaces/:id/messages
//
// Returns the display view: non-hidden messages sorted by timestamp.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSpaceID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sp, ok := h.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}

	visible := model.VisibleMessages(sp.Messages)
	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages: visible,
		Total:    len(visible),
	})
}

// Send handles POST /api/v1/messages
//
// Sends a message to the current space and streams the response over SSE:
// user_message, token events, message_complete, done.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	_, err := h.adapter.AppendWithPersist(ctx, req, session.SendCallbacks{
		OnPersisted: func(msg model.Message) {
			sendSSEEvent(w, flusher, "user_message", msg)
		},
		OnToken: func(messageID, token string, index int) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			return sendSSEEvent(w, flusher, "token", &model.TokenEvent{
				MessageID: messageID,
				Token:     token,
				Index:     index,
			})
		},
		OnComplete: func(msg model.Message) {
			sendSSEEvent(w, flusher, "message_complete", &model.MessageCompleteEvent{Message: msg})
		},
	})

	if err != nil {
		code := "stream_error"
		if errors.Is(err, session.ErrLocalNotReady) {
			code = "local_not_ready"
		}
		h.logger.Error("send failed", zap.String("code", code), zap.Error(err))
		sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
			Code:    code,
			Message: err.Error(),
		})
		return
	}

	sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
}

// Stop handles POST /api/v1/messages/stop
func (h *MessageHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.adapter.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
