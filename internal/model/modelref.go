package model

import (
	"strings"
)

// ModelKind distinguishes remote provider models from on-device models.
type ModelKind string

const (
	ModelRemote ModelKind = "remote"
	ModelLocal  ModelKind = "local"
)

// ModelRef is a resolved model selection. Dispatch happens on Kind; the raw
// identifier string is not inspected again after resolution.
type ModelRef struct {
	Kind ModelKind
	ID   string
}

// localPrefix marks identifiers of on-device models ("local/llama-3b").
const localPrefix = "local/"

// ResolveModel turns a raw model identifier into a tagged variant. Resolution
// happens once, at selection time, at the edge of the system.
func ResolveModel(id string) ModelRef {
	if strings.HasPrefix(id, localPrefix) {
		return ModelRef{Kind: ModelLocal, ID: strings.TrimPrefix(id, localPrefix)}
	}
	return ModelRef{Kind: ModelRemote, ID: id}
}

// IsLocal reports whether the ref points at an on-device model.
func (r ModelRef) IsLocal() bool {
	return r.Kind == ModelLocal
}
