package compaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/quota"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

type fakeSummarizer struct {
	calls  int
	seen   []model.Message
	result Summary
	err    error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, msgs []model.Message) (Summary, error) {
	f.calls++
	f.seen = msgs
	return f.result, f.err
}

func newTestWorkflow(t *testing.T, summarizer Summarizer) (*Workflow, *store.Store) {
	t.Helper()
	st := store.New(quota.NewPolicy(), nil, logger.NewNop())
	return New(st, summarizer, logger.NewNop()), st
}

func seedConversation(t *testing.T, st *store.Store) model.Space {
	t.Helper()
	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)
	require.NoError(t, st.Rename(sp.ID, "Thermo", false))
	require.NoError(t, st.SetStudyMode(sp.ID, "quiz"))
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m1", Role: model.RoleUser, Content: "what is entropy?"}))
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m2", Role: model.RoleAssistant, Content: "a measure of disorder"}))
	return sp
}

func TestRunCompactsCurrentSpace(t *testing.T) {
	summarizer := &fakeSummarizer{result: Summary{Summary: "Discussed entropy.", Title: "Entropy"}}
	w, st := newTestWorkflow(t, summarizer)
	original := seedConversation(t, st)

	continuation, err := w.Run(context.Background(), quota.TierFree)
	require.NoError(t, err)

	assert.Equal(t, "Entropy (Continued)", continuation.Name)
	assert.Equal(t, continuation.ID, st.CurrentID())
	assert.Equal(t, original.NotebookID, continuation.NotebookID)

	// One assistant seed carrying the summary.
	require.Len(t, continuation.Messages, 1)
	assert.Equal(t, model.RoleAssistant, continuation.Messages[0].Role)
	assert.Contains(t, continuation.Messages[0].Content, "Discussed entropy.")

	// The original keeps its full history, gains the context-reset flag
	// and loses its study mode.
	got, ok := st.Get(original.ID)
	require.True(t, ok)
	assert.Len(t, got.Messages, 2)
	assert.True(t, got.Metadata.ContextReset)
	assert.Empty(t, got.StudyMode)

	// The summarizer saw the transcript in timestamp order.
	require.Len(t, summarizer.seen, 2)
	assert.Equal(t, "m1", summarizer.seen[0].ID)
}

func TestRunEmptySpace(t *testing.T) {
	summarizer := &fakeSummarizer{}
	w, st := newTestWorkflow(t, summarizer)

	_, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	_, err = w.Run(context.Background(), quota.TierFree)
	assert.ErrorIs(t, err, ErrEmptySpace)
	assert.Zero(t, summarizer.calls)
	assert.Equal(t, 1, st.List().Total)
}

func TestRunSummarizerFailureLeavesStoreUntouched(t *testing.T) {
	summarizer := &fakeSummarizer{err: errors.New("upstream timeout")}
	w, st := newTestWorkflow(t, summarizer)
	original := seedConversation(t, st)

	_, err := w.Run(context.Background(), quota.TierFree)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptySpace)

	assert.Equal(t, 1, st.List().Total)
	assert.Equal(t, original.ID, st.CurrentID())
	got, ok := st.Get(original.ID)
	require.True(t, ok)
	assert.False(t, got.Metadata.ContextReset)
}

func TestRunGoesThroughQuotaGate(t *testing.T) {
	summarizer := &fakeSummarizer{result: Summary{Summary: "S", Title: "T"}}
	w, st := newTestWorkflow(t, summarizer)
	seedConversation(t, st)

	// Fill the notebook to the free cap.
	for st.List().Total < quota.FreeSpaceLimit {
		_, err := st.Create("nb1", "", quota.TierFree)
		require.NoError(t, err)
	}
	// Put a message in the now-current space so the precondition holds.
	cur, ok := st.Current()
	require.True(t, ok)
	require.NoError(t, st.AddMessageTo(cur.ID, model.Message{ID: "mX", Role: model.RoleUser, Content: "q"}))

	_, err := w.Run(context.Background(), quota.TierFree)
	assert.ErrorIs(t, err, store.ErrQuotaExceeded)

	// Staff accounts compact past the cap.
	_, err = w.Run(context.Background(), quota.TierStaff)
	assert.NoError(t, err)
}
