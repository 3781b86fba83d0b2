package chatengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/llm"
	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
	"github.com/lumenote-ai/notebook-platform/pkg/metrics"
)

// Remote is the chat engine backed by a remote LLM provider.
type Remote struct {
	client llm.Client
	logger *logger.Logger

	mu     sync.Mutex
	buffer []model.Message
	status Status
	cancel context.CancelFunc

	// replays counts buffer replacements. A completion joins the buffer
	// only if no replay happened while it was generating; otherwise the
	// buffer already belongs to another space and the completion reaches
	// its own space through persistence alone.
	replays uint64
}

// NewRemote creates a remote chat engine.
func NewRemote(client llm.Client, log *logger.Logger) *Remote {
	return &Remote{
		client: client,
		logger: log,
		status: StatusReady,
	}
}

// SetMessages replaces the effective buffer.
func (e *Remote) SetMessages(msgs []model.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replays++
	e.buffer = make([]model.Message, len(msgs))
	copy(e.buffer, msgs)
}

// Messages returns a copy of the effective buffer.
func (e *Remote) Messages() []model.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Message, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// Status reports the engine state.
func (e *Remote) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stop cancels an in-flight generation.
func (e *Remote) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Append adds the message to the buffer and generates a response.
func (e *Remote) Append(ctx context.Context, msg model.Message, opts AppendOptions) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, msg)
	e.mu.Unlock()

	return e.generate(ctx, opts)
}

// Reload drops the trailing assistant message, if any, and regenerates from
// the remaining buffer.
func (e *Remote) Reload(ctx context.Context, opts AppendOptions) error {
	e.mu.Lock()
	if n := len(e.buffer); n > 0 && e.buffer[n-1].Role == model.RoleAssistant {
		e.buffer = e.buffer[:n-1]
	}
	e.mu.Unlock()

	return e.generate(ctx, opts)
}

func (e *Remote) generate(ctx context.Context, opts AppendOptions) error {
	if e.client == nil {
		e.setStatus(StatusError)
		return errors.New("no LLM provider configured")
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.status = StatusSubmitted
	e.cancel = cancel
	replays := e.replays
	history := make([]llm.ChatMessage, 0, len(e.buffer))
	for _, m := range e.buffer {
		history = append(history, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	e.mu.Unlock()

	start := time.Now()
	resp, err := e.client.CompleteStream(genCtx, &llm.CompletionRequest{
		Model:    opts.Model,
		Messages: history,
	}, func(token string, index int) error {
		e.setStatus(StatusStreaming)
		if opts.OnToken != nil {
			return opts.OnToken(token, index)
		}
		return nil
	})
	if err != nil {
		e.setStatus(StatusError)
		e.clearCancel()
		metrics.RecordLLMStream(opts.Model, "error", time.Since(start).Seconds(), 0, 0)
		e.logger.Error("remote generation failed",
			zap.String("space_id", opts.SpaceID),
			zap.String("model", opts.Model),
			zap.Error(err),
		)
		return fmt.Errorf("remote generation failed: %w", err)
	}

	id := opts.CompletionID
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	assistant := model.Message{
		ID:        id,
		Role:      model.RoleAssistant,
		Content:   resp.Content,
		CreatedAt: time.Now(),
		Model:     resp.Model,
	}

	e.mu.Lock()
	if e.replays == replays {
		e.buffer = append(e.buffer, assistant)
	}
	e.status = StatusReady
	e.cancel = nil
	e.mu.Unlock()

	metrics.RecordLLMStream(resp.Model, "success", float64(resp.LatencyMs)/1000.0, resp.TokensIn, resp.TokensOut)

	if opts.OnFinish != nil {
		opts.OnFinish(assistant)
	}
	return nil
}

func (e *Remote) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Remote) clearCancel() {
	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()
}
