package domain

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeNoteText trims surrounding whitespace and folds the text to NFC so
// dictated and typed Cyrillic compare equal.
func NormalizeNoteText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateNoteText returns the normalized text or ErrEmptyNote.
func ValidateNoteText(s string) (string, error) {
	text := NormalizeNoteText(s)
	if text == "" {
		return "", ErrEmptyNote
	}
	return text, nil
}
