package chatengine

import (
	"context"

	"github.com/lumenote-ai/notebook-platform/internal/model"
)

// LocalGenerator is the on-device generation contract. Model loading and
// inference live outside this module; the core only checks readiness before
// a send and consumes the streamed callbacks.
//
// The local branch exposes no cancel path; a generation runs to completion
// or error once started.
type LocalGenerator interface {
	// Ready reports whether a model is loaded and able to generate.
	Ready() bool

	// LoadModel loads the given on-device model.
	LoadModel(ctx context.Context, id string) error

	// Generate streams a completion for the history. onUpdate receives the
	// accumulated text plus the latest delta; onFinish receives the final
	// text exactly once on success.
	Generate(ctx context.Context, history []model.Message, onUpdate func(text, delta string), onFinish func(text string)) error
}
