// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/middleware"
	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

// SpaceHandler handles space endpoints.
type SpaceHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewSpaceHandler creates a new space handler.
func NewSpaceHandler(st *store.Store, log *logger.Logger) *SpaceHandler {
	return &SpaceHandler{store: st, logger: log}
}

// quotaNotification is the user-facing quota denial payload. Denial is an
// expected outcome presented to the user, not a server fault.
type quotaNotification struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Create handles POST /api/v1/spaces
func (h *SpaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSpaceName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateNotebookID(req.NotebookID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sp, err := h.store.Create(req.NotebookID, req.Name, middleware.GetTier(r.Context()))
	if errors.Is(err, store.ErrQuotaExceeded) {
		writeJSON(w, http.StatusForbidden, quotaNotification{
			Error: "You've reached the space limit for this notebook. Archive or delete a space, or upgrade your plan.",
			Code:  "quota_exceeded",
		})
		return
	}
	if err != nil {
		h.logger.Error("failed to create space", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create space")
		return
	}

	writeJSON(w, http.StatusCreated, sp)
}

// List handles GET /api/v1/spaces
func (h *SpaceHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

// Get handles GET /api/v1/spaces/:id
func (h *SpaceHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, sp)
}

// Rename handles PUT /api/v1/spaces/:id
func (h *SpaceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSpaceID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.RenameSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateSpaceName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Rename(id, req.Name, req.Manual); err != nil {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	sp, _ := h.store.Get(id)
	writeJSON(w, http.StatusOK, sp)
}

// Delete handles DELETE /api/v1/spaces/:id
func (h *SpaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSpaceID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Archive handles POST /api/v1/spaces/:id/archive
func (h *SpaceHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSpaceID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Archive(id); err != nil {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Pin handles POST /api/v1/spaces/:id/pin
func (h *SpaceHandler) Pin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, true)
}

// Unpin handles DELETE /api/v1/spaces/:id/pin
func (h *SpaceHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	h.setPinned(w, r, false)
}

func (h *SpaceHandler) setPinned(w http.ResponseWriter, r *http.Request, pinned bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSpaceID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SetPinned(id, pinned); err != nil {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Switch handles POST /api/v1/spaces/:id/switch
func (h *SpaceHandler) Switch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateSpaceID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Switch(id); err != nil {
		writeError(w, http.StatusNotFound, "space not found")
		return
	}
	sp, _ := h.store.Get(id)
	writeJSON(w, http.StatusOK, sp)
}

// Search handles GET /api/v1/spaces/search?q=
func (h *SpaceHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	matches := h.store.Search(q)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"total":   len(matches),
	})
}
