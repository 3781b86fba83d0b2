package naming

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/quota"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

type fakeTitler struct {
	mu    sync.Mutex
	calls int
	title string
	err   error
}

func (f *fakeTitler) Title(ctx context.Context, msgs []model.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.title, f.err
}

func (f *fakeTitler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestEngine(t *testing.T, titler Titler) (*Engine, *store.Store) {
	t.Helper()
	st := store.New(quota.NewPolicy(), nil, logger.NewNop())
	e := New(st, titler, logger.NewNop(), Config{
		Cooldown:   time.Minute,
		MinLatency: 0,
	})
	return e, st
}

func seedEligibleSpace(t *testing.T, st *store.Store) model.Space {
	t.Helper()
	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m1", Role: model.RoleUser, Content: "what is entropy?"}))
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m2", Role: model.RoleAssistant, Content: "a measure of disorder"}))
	return sp
}

func TestProcessRenamesEligibleSpace(t *testing.T) {
	titler := &fakeTitler{title: "Entropy Basics"}
	e, st := newTestEngine(t, titler)
	sp := seedEligibleSpace(t, st)

	e.process(context.Background(), sp.ID)

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	assert.Equal(t, "Entropy Basics", got.Name)
	assert.False(t, got.Metadata.GeneratingName)
	assert.Equal(t, 1, titler.callCount())
}

func TestProcessSkipsSpaceWithTooFewMessages(t *testing.T) {
	titler := &fakeTitler{title: "Should Not Appear"}
	e, st := newTestEngine(t, titler)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	e.process(context.Background(), sp.ID)

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	assert.Equal(t, model.DefaultSpaceName, got.Name)
	assert.Zero(t, titler.callCount())
}

func TestProcessSkipsManuallyRenamedSpace(t *testing.T) {
	titler := &fakeTitler{title: "Should Not Appear"}
	e, st := newTestEngine(t, titler)
	sp := seedEligibleSpace(t, st)

	require.NoError(t, st.Rename(sp.ID, "My Title", true))

	e.process(context.Background(), sp.ID)

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	assert.Equal(t, "My Title", got.Name)
	assert.Zero(t, titler.callCount())
}

func TestProcessRespectsCooldown(t *testing.T) {
	titler := &fakeTitler{err: errors.New("provider down")}
	e, st := newTestEngine(t, titler)
	sp := seedEligibleSpace(t, st)

	e.process(context.Background(), sp.ID)
	require.Equal(t, 1, titler.callCount())

	// The failed attempt stamped the cooldown; an immediate retrigger is
	// a no-op instead of a tight retry loop.
	e.process(context.Background(), sp.ID)
	assert.Equal(t, 1, titler.callCount())

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	assert.Equal(t, model.DefaultSpaceName, got.Name)
	assert.False(t, got.Metadata.GeneratingName)
}

func TestProcessMinLatencyPadsFastGenerations(t *testing.T) {
	titler := &fakeTitler{title: "Quick Title"}
	st := store.New(quota.NewPolicy(), nil, logger.NewNop())
	e := New(st, titler, logger.NewNop(), Config{
		Cooldown:   time.Minute,
		MinLatency: 50 * time.Millisecond,
	})
	sp := seedEligibleSpace(t, st)

	start := time.Now()
	e.process(context.Background(), sp.ID)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	e, _ := newTestEngine(t, &fakeTitler{})
	for i := 0; i < 200; i++ {
		e.Enqueue("some-space")
	}
	// Queue is bounded; no deadlock, no panic.
	assert.LessOrEqual(t, len(e.queue), cap(e.queue))
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "Entropy Basics", sanitizeTitle(`  "Entropy Basics"  `))
	assert.Equal(t, "Line one Line two", sanitizeTitle("Line one\nLine two"))
	assert.Equal(t, "", sanitizeTitle("   "))

	long := strings.Repeat("x", 200)
	assert.Len(t, sanitizeTitle(long), maxTitleLen)
}

func TestSanitizeTitleTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("é", 200)
	got := sanitizeTitle(long)

	assert.True(t, utf8.ValidString(got))
	assert.Len(t, []rune(got), maxTitleLen)
}
