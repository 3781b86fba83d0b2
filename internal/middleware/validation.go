package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSpaceID validates a space ID.
func ValidateSpaceID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid space ID format")
	}
	return nil
}

// ValidateSpaceName validates a space name.
func ValidateSpaceName(name string) error {
	if len(name) > 256 {
		return errors.New("name exceeds maximum length")
	}
	if !utf8.ValidString(name) {
		return errors.New("name must be valid UTF-8")
	}
	return nil
}

// ValidateNotebookID validates a notebook ID.
func ValidateNotebookID(id string) error {
	if len(id) == 0 {
		return errors.New("notebook ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("notebook ID exceeds maximum length")
	}
	return nil
}
