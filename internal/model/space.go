// Package model defines data structures for the notebook platform.
package model

import (
	"strings"
	"time"
)

// DefaultSpaceName is the name given to spaces created without an explicit
// name and to the fallback space synthesized when the last space is deleted.
const DefaultSpaceName = "New Space"

// SpaceMetadata carries the mutable flags attached to a space.
type SpaceMetadata struct {
	ManuallyRenamed    bool      `json:"manually_renamed"`
	Pinned             bool      `json:"pinned"`
	GeneratingName     bool      `json:"is_generating_name"`
	LastAutoNameUpdate time.Time `json:"last_auto_name_update"`
	ContextReset       bool      `json:"context_reset"`
}

// Space represents one persisted conversation.
type Space struct {
	ID         string        `json:"id"`
	NotebookID string        `json:"notebook_id"`
	Name       string        `json:"name"`
	Messages   []Message     `json:"messages"`
	Archived   bool          `json:"archived,omitempty"`
	Metadata   SpaceMetadata `json:"metadata"`
	StudyMode  string        `json:"study_mode,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// HasDefaultName reports whether the space still carries an auto-generated
// default name ("New Space", "New Space 2", ...).
func (s *Space) HasDefaultName() bool {
	if s.Name == DefaultSpaceName {
		return true
	}
	return strings.HasPrefix(s.Name, DefaultSpaceName+" ")
}

// CreateSpaceRequest is the request to create a new space.
type CreateSpaceRequest struct {
	Name       string `json:"name"`
	NotebookID string `json:"notebook_id"`
}

// RenameSpaceRequest is the request to rename a space.
type RenameSpaceRequest struct {
	Name   string `json:"name"`
	Manual bool   `json:"manual"`
}

// ListSpacesResponse is the response for listing spaces.
type ListSpacesResponse struct {
	Spaces         []Space `json:"spaces"`
	CurrentSpaceID string  `json:"current_space_id"`
	Total          int     `json:"total"`
}

// MatchKind says where a search hit was found.
type MatchKind string

const (
	MatchName    MatchKind = "name"
	MatchMessage MatchKind = "message"
)

// SearchMatch is one search hit: the space it was found in, the matching
// text, and whether the match came from the name or a message body.
type SearchMatch struct {
	SpaceID   string    `json:"space_id"`
	SpaceName string    `json:"space_name"`
	Kind      MatchKind `json:"kind"`
	Text      string    `json:"text"`
}
