package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/compaction"
	"github.com/lumenote-ai/notebook-platform/internal/middleware"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

// CompactHandler handles the compaction endpoint.
type CompactHandler struct {
	workflow *compaction.Workflow
	logger   *logger.Logger
}

// NewCompactHandler creates a new compaction handler.
func NewCompactHandler(workflow *compaction.Workflow, log *logger.Logger) *CompactHandler {
	return &CompactHandler{workflow: workflow, logger: log}
}

// Compact handles POST /api/v1/spaces/compact
//
// Compacts the current space. An empty conversation is the expected,
// user-facing rejection; anything else is a workflow failure.
func (h *CompactHandler) Compact(w http.ResponseWriter, r *http.Request) {
	if h.workflow == nil {
		writeError(w, http.StatusServiceUnavailable, "compaction is not configured")
		return
	}

	sp, err := h.workflow.Run(r.Context(), middleware.GetTier(r.Context()))
	if errors.Is(err, compaction.ErrEmptySpace) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, store.ErrQuotaExceeded) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("compaction failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "compaction failed")
		return
	}

	writeJSON(w, http.StatusCreated, sp)
}
