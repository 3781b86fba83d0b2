package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenote-ai/notebook-platform/internal/chatengine"
	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/quota"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

// fakeEngine records buffer mutations and lets tests script generation.
type fakeEngine struct {
	mu     sync.Mutex
	buffer []model.Message

	appendCalls int
	lastOpts    chatengine.AppendOptions
	appendErr   error

	// finish, when set, is invoked by Append with the options so the test
	// controls when and what the "completion" is.
	finish func(opts chatengine.AppendOptions)
}

func (e *fakeEngine) Append(ctx context.Context, msg model.Message, opts chatengine.AppendOptions) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, msg)
	e.appendCalls++
	e.lastOpts = opts
	finish := e.finish
	err := e.appendErr
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if finish != nil {
		finish(opts)
	}
	return nil
}

func (e *fakeEngine) SetMessages(msgs []model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = make([]model.Message, len(msgs))
	copy(e.buffer, msgs)
}

func (e *fakeEngine) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.buffer))
	copy(out, e.buffer)
	return out
}

func (e *fakeEngine) Reload(ctx context.Context, opts chatengine.AppendOptions) error {
	return nil
}

func (e *fakeEngine) Stop() {}

func (e *fakeEngine) Status() chatengine.Status { return chatengine.StatusReady }

// fakeLocal scripts the on-device generator.
type fakeLocal struct {
	ready   bool
	updates []string
	final   string
	err     error
}

func (l *fakeLocal) Ready() bool { return l.ready }

func (l *fakeLocal) LoadModel(ctx context.Context, id string) error { return nil }

func (l *fakeLocal) Generate(ctx context.Context, history []model.Message, onUpdate func(text, delta string), onFinish func(text string)) error {
	text := ""
	for _, delta := range l.updates {
		text += delta
		onUpdate(text, delta)
	}
	if l.err != nil {
		return l.err
	}
	onFinish(l.final)
	return nil
}

func newTestAdapter(t *testing.T, engine chatengine.Engine, local chatengine.LocalGenerator) (*Adapter, *store.Store) {
	t.Helper()
	st := store.New(quota.NewPolicy(), nil, logger.NewNop())
	return New(st, engine, local, logger.NewNop()), st
}

func TestReplayLoadsSortedHistory(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m2", Role: model.RoleAssistant, Content: "second", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m1", Role: model.RoleUser, Content: "first", CreatedAt: base}))

	require.NoError(t, a.Replay(sp.ID))

	buf := engine.Messages()
	require.Len(t, buf, 2)
	assert.Equal(t, "m1", buf[0].ID)
	assert.Equal(t, "m2", buf[1].ID)
}

func TestReplayAfterContextResetEmptiesBuffer(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m1", Role: model.RoleUser, Content: "old"}))
	require.NoError(t, st.MarkContextReset(sp.ID))

	engine.SetMessages([]model.Message{{ID: "stale"}})
	require.NoError(t, a.Replay(sp.ID))

	// Effective context is empty; the persisted list is untouched.
	assert.Empty(t, engine.Messages())
	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	assert.Len(t, got.Messages, 1)

	assert.ErrorIs(t, a.Replay("missing"), store.ErrSpaceNotFound)
}

func TestSendPersistsBeforeGeneration(t *testing.T) {
	engine := &fakeEngine{appendErr: errors.New("provider down")}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	userMsg, err := a.AppendWithPersist(context.Background(), model.SendMessageRequest{Content: "hello"}, SendCallbacks{})
	require.Error(t, err)
	require.NotEmpty(t, userMsg.ID)

	// The generation failed but the user's message survived.
	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
	assert.False(t, got.Messages[0].Hidden)
}

func TestSendHiddenSystemMessageSkipsGeneration(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	msg, err := a.AppendWithPersist(context.Background(), model.SendMessageRequest{
		Content: "Activate quiz mode for this conversation.",
		Role:    model.RoleSystem,
	}, SendCallbacks{})
	require.NoError(t, err)
	assert.True(t, msg.Hidden)

	// Persisted and in the effective buffer, but no generation was started.
	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.True(t, got.Messages[0].Hidden)
	assert.Empty(t, model.VisibleMessages(got.Messages))

	buf := engine.Messages()
	require.Len(t, buf, 1)
	assert.Equal(t, msg.ID, buf[0].ID)
	assert.Zero(t, engine.appendCalls)
}

func TestSendRemoteStreamsAndPersistsCompletion(t *testing.T) {
	engine := &fakeEngine{}
	engine.finish = func(opts chatengine.AppendOptions) {
		require.NoError(t, opts.OnToken("Hi", 0))
		require.NoError(t, opts.OnToken(" there", 1))
		opts.OnFinish(model.Message{
			ID:        opts.CompletionID,
			Role:      model.RoleAssistant,
			Content:   "Hi there",
			CreatedAt: time.Now(),
		})
	}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	var tokens []string
	var tokenMessageID string
	var completed model.Message
	_, err = a.AppendWithPersist(context.Background(), model.SendMessageRequest{Content: "hello"}, SendCallbacks{
		OnToken: func(messageID, token string, index int) error {
			tokenMessageID = messageID
			tokens = append(tokens, token)
			return nil
		},
		OnComplete: func(msg model.Message) { completed = msg },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi", " there"}, tokens)

	// The streamed draft and the persisted completion share one id, so the
	// store reconciles them by replacement.
	assert.Equal(t, completed.ID, tokenMessageID)

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hi there", got.Messages[1].Content)
	assert.Equal(t, completed.ID, got.Messages[1].ID)
}

func TestPersistedAcknowledgmentPrecedesTokens(t *testing.T) {
	engine := &fakeEngine{}
	engine.finish = func(opts chatengine.AppendOptions) {
		require.NoError(t, opts.OnToken("Hi", 0))
		opts.OnFinish(model.Message{ID: opts.CompletionID, Role: model.RoleAssistant, Content: "Hi"})
	}
	a, st := newTestAdapter(t, engine, nil)

	_, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	var order []string
	_, err = a.AppendWithPersist(context.Background(), model.SendMessageRequest{Content: "hello"}, SendCallbacks{
		OnPersisted: func(msg model.Message) { order = append(order, "persisted:"+string(msg.Role)) },
		OnToken: func(messageID, token string, index int) error {
			order = append(order, "token")
			return nil
		},
		OnComplete: func(msg model.Message) { order = append(order, "complete") },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"persisted:user", "token", "complete"}, order)
}

func TestLateCompletionLandsInOwningSpace(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, nil)

	origin, err := st.Create("nb1", "Origin", quota.TierFree)
	require.NoError(t, err)

	// Generation completes after the user has switched away.
	engine.finish = func(opts chatengine.AppendOptions) {
		_, err := st.Create("nb1", "Elsewhere", quota.TierFree)
		require.NoError(t, err)
		opts.OnFinish(model.Message{
			ID:      opts.CompletionID,
			Role:    model.RoleAssistant,
			Content: "late answer",
		})
	}

	_, err = a.AppendWithPersist(context.Background(), model.SendMessageRequest{Content: "slow question"}, SendCallbacks{})
	require.NoError(t, err)

	got, ok := st.Get(origin.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "late answer", got.Messages[1].Content)

	cur, ok := st.Current()
	require.True(t, ok)
	assert.NotEqual(t, origin.ID, cur.ID)
	assert.Empty(t, cur.Messages)
}

func TestSendLocalNotReady(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, &fakeLocal{ready: false})

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	userMsg, err := a.AppendWithPersist(context.Background(), model.SendMessageRequest{
		Content: "hello",
		Model:   "local/llama-3b",
	}, SendCallbacks{})
	assert.ErrorIs(t, err, ErrLocalNotReady)
	assert.NotEmpty(t, userMsg.ID)

	// Aborted before any assistant message existed, but the user message
	// was already persisted.
	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, model.RoleUser, got.Messages[0].Role)
}

func TestSendLocalPersistsOnceOnCompletion(t *testing.T) {
	engine := &fakeEngine{}
	local := &fakeLocal{ready: true, updates: []string{"Hel", "lo"}, final: "Hello"}
	a, st := newTestAdapter(t, engine, local)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	var tokens []string
	var completed model.Message
	_, err = a.AppendWithPersist(context.Background(), model.SendMessageRequest{
		Content: "hi",
		Model:   "local/llama-3b",
	}, SendCallbacks{
		OnToken: func(messageID, token string, index int) error {
			tokens = append(tokens, token)
			return nil
		},
		OnComplete: func(msg model.Message) { completed = msg },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, tokens)
	assert.Equal(t, "Hello", completed.Content)
	assert.Equal(t, "llama-3b", completed.Model)

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "Hello", got.Messages[1].Content)

	// The engine buffer gained the user message and the completion.
	assert.Len(t, engine.Messages(), 2)
}

func TestSendLocalFailureKeepsPartialText(t *testing.T) {
	engine := &fakeEngine{}
	local := &fakeLocal{ready: true, updates: []string{"partial ", "answer"}, err: errors.New("runtime crashed")}
	a, st := newTestAdapter(t, engine, local)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	_, err = a.AppendWithPersist(context.Background(), model.SendMessageRequest{
		Content: "hi",
		Model:   "local/llama-3b",
	}, SendCallbacks{})
	require.Error(t, err)

	// The user keeps what they saw streamed before the crash.
	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "partial answer", got.Messages[1].Content)
	assert.Equal(t, model.RoleAssistant, got.Messages[1].Role)
}

func TestRunReplaysOnSwitch(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "A", quota.TierFree)
	require.NoError(t, err)
	require.NoError(t, st.AddMessageTo(sp.ID, model.Message{ID: "m1", Role: model.RoleUser, Content: "q"}))
	other, err := st.Create("nb1", "B", quota.TierFree)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	// Give Run a beat to subscribe before the first switch fires.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, st.Switch(sp.ID))
	require.Eventually(t, func() bool {
		return len(engine.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, st.Switch(other.ID))
	require.Eventually(t, func() bool {
		return len(engine.Messages()) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestActivateModeSetsStudyModeAndReloads(t *testing.T) {
	engine := &fakeEngine{}
	a, st := newTestAdapter(t, engine, nil)

	sp, err := st.Create("nb1", "", quota.TierFree)
	require.NoError(t, err)

	require.NoError(t, a.ActivateMode(context.Background(), "quiz", "", SendCallbacks{}))

	got, ok := st.Get(sp.ID)
	require.True(t, ok)
	assert.Equal(t, "quiz", got.StudyMode)
	require.Len(t, got.Messages, 1)
	assert.True(t, got.Messages[0].Hidden)
	assert.Equal(t, model.RoleSystem, got.Messages[0].Role)
}
