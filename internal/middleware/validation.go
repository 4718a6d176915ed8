package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/draftwell-ai/artifact-platform/internal/model"
)

// ValidateID validates a conversation or artifact ID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid ID format")
	}
	return nil
}

// ValidatePrompt validates generation prompt content.
func ValidatePrompt(prompt string) error {
	if len(prompt) == 0 {
		return errors.New("prompt cannot be empty")
	}
	if len(prompt) > 100000 { // ~100KB limit
		return errors.New("prompt exceeds maximum length")
	}
	if !utf8.ValidString(prompt) {
		return errors.New("prompt must be valid UTF-8")
	}
	return nil
}

// ValidateTitle validates a title.
func ValidateTitle(title string) error {
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}

// ValidateKind validates an artifact kind.
func ValidateKind(kind model.Kind) error {
	switch kind {
	case "", model.KindText, model.KindCode, model.KindImage, model.KindSheet, model.KindMarkdown:
		return nil
	}
	return errors.New("unknown artifact kind")
}
