package comments

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxSanitizeRounds = 8

// Sanitizer turns raw user input into the plain text stored as a comment body.
type Sanitizer interface {
	Sanitize(raw string) string
}

type plainTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewPlainTextSanitizer strips every tag and attribute. Bodies are stored as decoded text, so
// decoding is repeated through the policy until it reaches a fixed point; markup smuggled in
// as entities is stripped on a later round instead of surviving as a tag.
func NewPlainTextSanitizer() Sanitizer {
	return &plainTextSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *plainTextSanitizer) Sanitize(raw string) string {
	current := raw
	for round := 0; round < maxSanitizeRounds; round++ {
		stripped := s.policy.Sanitize(current)
		decoded := html.UnescapeString(stripped)
		if decoded == current {
			return strings.TrimSpace(decoded)
		}
		current = decoded
	}
	// Entities nested deeper than the round limit stay encoded.
	return strings.TrimSpace(s.policy.Sanitize(current))
}
