package llm

import (
	"encoding/json"
	"strings"

	"github.com/talentops/cdd-analyzer/internal/logger"
)

// markerToken is a known artifact some bot endpoints prepend to replies.
const markerToken = "<|FunctionCallEnd|>"

// snippetLimit bounds how much offending text a MalformedOutputError carries.
const snippetLimit = 100

// Normalize strips formatting noise from a raw model reply and returns the
// text that should be parseable JSON. It removes a leading marker token,
// leading/trailing code fences and one level of doubled outer braces (a known
// quirk of template-expanded model output). ErrEmptyContent is returned when
// nothing is left after cleanup.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, markerToken)
	s = strings.TrimSpace(s)

	if lower := strings.ToLower(s); strings.HasPrefix(lower, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSpace(s)

	if strings.HasSuffix(s, "```") {
		s = s[:len(s)-len("```")]
		s = strings.TrimSpace(s)
	}

	if s == "" {
		return "", ErrEmptyContent
	}

	if strings.HasPrefix(s, "{{") {
		s = s[1:]
	}
	if strings.HasSuffix(s, "}}") {
		s = s[:len(s)-1]
	}

	return s, nil
}

// Decode normalizes the raw reply and strictly parses the remainder as JSON
// into v. Parse failures come back as a MalformedOutputError carrying a
// truncated snippet of the cleaned text.
func Decode(raw string, v any) error {
	cleaned, err := Normalize(raw)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &MalformedOutputError{
			Snippet: logger.TruncateForLog(cleaned, snippetLimit),
			Err:     err,
		}
	}

	return nil
}
