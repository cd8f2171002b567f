package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps transport and provider-reported failures. Callers
	// should treat it as retryable later, not immediately.
	ErrUnavailable = errors.New("model service is unavailable")

	// ErrEmptyResponse means the provider answered without any usable choice content.
	ErrEmptyResponse = errors.New("model returned no usable content")

	// ErrEmptyContent means the reply was empty once formatting noise was stripped.
	ErrEmptyContent = errors.New("model reply is empty after cleanup")
)

// MalformedOutputError reports that a model reply could not be parsed after
// normalization. Snippet carries a truncated piece of the offending text for
// diagnostics, never the full reply.
type MalformedOutputError struct {
	Snippet string
	Err     error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %v (snippet: %q)", e.Err, e.Snippet)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// Unavailable reports whether the error belongs to the service-unavailable
// class: retrying the same request later may succeed.
func Unavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrEmptyResponse)
}
