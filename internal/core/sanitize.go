package core

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxTextLength = 10000
	MaxWordCount  = 2000
	MaxLineCount  = 100
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Control characters other than tab and newline are never legitimate
	// in review text and usually indicate a binary upload.
	controlCharRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// SanitizeText validates and normalizes a single input text before it is
// handed to any model. It strips markup, collapses whitespace, and rejects
// inputs that exceed the service limits.
func SanitizeText(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("text must not be empty")
	}

	// The limit is in characters, not bytes; multibyte text must not be
	// penalized for its encoding.
	if utf8.RuneCountInString(text) > MaxTextLength {
		return "", fmt.Errorf("text exceeds maximum length of %d characters", MaxTextLength)
	}

	if n := strings.Count(text, "\n") + 1; n > MaxLineCount {
		return "", fmt.Errorf("text exceeds maximum of %d lines", MaxLineCount)
	}

	if controlCharRe.MatchString(text) {
		return "", fmt.Errorf("text contains control characters")
	}

	cleaned := htmlTagRe.ReplaceAllString(text, " ")
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", fmt.Errorf("text is empty after sanitization")
	}

	if n := len(strings.Fields(cleaned)); n > MaxWordCount {
		return "", fmt.Errorf("text exceeds maximum of %d words", MaxWordCount)
	}

	return cleaned, nil
}
