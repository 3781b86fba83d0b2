// Package naming assigns display names to untitled spaces in the background.
//
// Per-space state machine: Idle → Generating → Idle. The transition into
// Generating is an atomic store guard (BeginNaming) checking the manual-rename
// suppression, the in-flight flag, the cooldown and the content eligibility
// predicate, so two scans can never double-submit one space. Eligible spaces
// are processed by a single worker, sequentially, to keep store writes
// ordered.
package naming

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/llm"
	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
	"github.com/lumenote-ai/notebook-platform/pkg/metrics"
)

const (
	// DefaultCooldown is the minimum interval between auto-naming attempts
	// for one space. A no-op rename still resets it.
	DefaultCooldown = 5 * time.Minute

	// DefaultMinLatency pads fast generations so the "generating" affordance
	// is perceivable instead of flickering.
	DefaultMinLatency = 800 * time.Millisecond

	maxTitleLen = 80
)

// Titler produces a short display name from a transcript.
type Titler interface {
	Title(ctx context.Context, msgs []model.Message) (string, error)
}

// Config tunes the engine.
type Config struct {
	Cooldown   time.Duration
	MinLatency time.Duration

	// Eligible is the content-based predicate: "has enough content to
	// deserve a name". Nil means the default (two or more messages and a
	// still-default name).
	Eligible func(sp *model.Space) bool
}

// Engine is the background naming worker.
type Engine struct {
	store  *store.Store
	titler Titler
	logger *logger.Logger
	cfg    Config

	queue chan string
}

// New creates a naming engine.
func New(st *store.Store, titler Titler, log *logger.Logger, cfg Config) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MinLatency < 0 {
		cfg.MinLatency = 0
	}
	if cfg.Eligible == nil {
		cfg.Eligible = defaultEligible
	}
	return &Engine{
		store:  st,
		titler: titler,
		logger: log,
		cfg:    cfg,
		queue:  make(chan string, 64),
	}
}

func defaultEligible(sp *model.Space) bool {
	return len(sp.Messages) >= 2 && sp.HasDefaultName()
}

// Enqueue submits a space for a naming attempt. Dropped when the queue is
// full; the next message on the space re-triggers it.
func (e *Engine) Enqueue(spaceID string) {
	select {
	case e.queue <- spaceID:
	default:
	}
}

// Run consumes store events and works the queue until the context is done.
// New messages on a space are the trigger; the guards in BeginNaming decide
// whether an attempt actually starts.
func (e *Engine) Run(ctx context.Context) {
	events := e.store.Subscribe(32)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if evt.Type == model.EventMessageAdded {
				e.Enqueue(evt.SpaceID)
			}
		case spaceID := <-e.queue:
			e.process(ctx, spaceID)
		}
	}
}

// process runs one naming attempt. The worker is the only goroutine calling
// this, so generation requests are serialized across spaces.
func (e *Engine) process(ctx context.Context, spaceID string) {
	if !e.store.BeginNaming(spaceID, e.cfg.Cooldown, e.cfg.Eligible) {
		return
	}

	sp, ok := e.store.Get(spaceID)
	if !ok {
		e.store.FinishNaming(spaceID, "")
		return
	}

	start := time.Now()
	title, err := e.titler.Title(ctx, model.VisibleMessages(sp.Messages))

	// Hold the generating affordance up to the minimum latency.
	if remaining := e.cfg.MinLatency - time.Since(start); remaining > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(remaining):
		}
	}

	if err != nil {
		metrics.NamingGenerations.WithLabelValues("error").Inc()
		e.logger.Warn("auto-naming failed", zap.String("space_id", spaceID), zap.Error(err))
		// Clear the guard and stamp the cooldown so a failing titler does
		// not retry in a tight loop.
		e.store.FinishNaming(spaceID, "")
		return
	}

	title = sanitizeTitle(title)
	if title == "" || title == sp.Name {
		metrics.NamingGenerations.WithLabelValues("unchanged").Inc()
	} else {
		metrics.NamingGenerations.WithLabelValues("renamed").Inc()
	}
	e.store.FinishNaming(spaceID, title)
}

func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	title = strings.ReplaceAll(title, "\n", " ")
	// Truncate on rune boundaries so a multi-byte character is never split.
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = strings.TrimSpace(string(runes[:maxTitleLen]))
	}
	return title
}

// LLMTitler titles a transcript with a provider model.
type LLMTitler struct {
	client llm.Client
	model  string
}

// NewLLMTitler creates a titler backed by the given client.
func NewLLMTitler(client llm.Client, modelID string) *LLMTitler {
	return &LLMTitler{client: client, model: modelID}
}

// Title asks the model for a short name for the conversation.
func (t *LLMTitler) Title(ctx context.Context, msgs []model.Message) (string, error) {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	resp, err := t.client.Complete(ctx, &llm.CompletionRequest{
		Model:     t.model,
		MaxTokens: 32,
		Messages: []llm.ChatMessage{
			{
				Role: "user",
				Content: "Give this conversation a short title, at most six words. " +
					"Reply with the title only.\n\n" + b.String(),
			},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
