// Package compaction summarizes a long conversation into a fresh space,
// decoupling future generation from the old transcript's length while keeping
// the original's visible history intact.
package compaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/quota"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
	"github.com/lumenote-ai/notebook-platform/pkg/metrics"
)

// ErrEmptySpace is the expected precondition failure: there is nothing to
// compact. Callers surface it to the user and abort; no state changes.
var ErrEmptySpace = errors.New("cannot compact an empty conversation")

// Summary is the summarization result.
type Summary struct {
	Summary string `json:"summary"`
	Title   string `json:"title"`
}

// Summarizer condenses a transcript into a summary and a title.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []model.Message) (Summary, error)
}

// Workflow orchestrates compaction: summarize, create the continuation
// space, relocate, mark the original context-reset. It holds no state of its
// own and persists nothing mid-flight; any failure after the precondition
// check propagates to the caller.
type Workflow struct {
	store      *store.Store
	summarizer Summarizer
	logger     *logger.Logger
}

// New creates a compaction workflow.
func New(st *store.Store, summarizer Summarizer, log *logger.Logger) *Workflow {
	return &Workflow{store: st, summarizer: summarizer, logger: log}
}

// Run compacts the current space. On success the continuation space named
// "{title} (Continued)" is current and holds one assistant message framing
// the summary; the original keeps its full message list and gains the
// context-reset flag.
func (w *Workflow) Run(ctx context.Context, tier quota.Tier) (model.Space, error) {
	original, ok := w.store.Current()
	if !ok || len(original.Messages) == 0 {
		metrics.CompactionsTotal.WithLabelValues("empty").Inc()
		return model.Space{}, ErrEmptySpace
	}

	result, err := w.summarizer.Summarize(ctx, model.SortMessages(original.Messages))
	if err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return model.Space{}, fmt.Errorf("summarization failed: %w", err)
	}

	continuation, err := w.store.Create(original.NotebookID, result.Title+" (Continued)", tier)
	if err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return model.Space{}, fmt.Errorf("failed to create continuation space: %w", err)
	}

	// Create already made the new space current; the explicit switch is the
	// awaited settling point before writes land in it.
	if err := w.store.Switch(continuation.ID); err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return model.Space{}, err
	}

	seed := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      model.RoleAssistant,
		Content:   "Continuing from a previous conversation.\n\nSummary so far:\n" + result.Summary,
		CreatedAt: time.Now(),
	}
	if err := w.store.AddMessageTo(continuation.ID, seed); err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return model.Space{}, fmt.Errorf("failed to seed continuation space: %w", err)
	}

	if err := w.store.MarkContextReset(original.ID); err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return model.Space{}, err
	}
	if err := w.store.ClearStudyMode(original.ID); err != nil {
		metrics.CompactionsTotal.WithLabelValues("error").Inc()
		return model.Space{}, err
	}

	metrics.CompactionsTotal.WithLabelValues("success").Inc()
	w.logger.Info("space compacted",
		zap.String("original_space_id", original.ID),
		zap.String("continuation_space_id", continuation.ID),
		zap.Int("message_count", len(original.Messages)),
	)

	sp, _ := w.store.Get(continuation.ID)
	return sp, nil
}
