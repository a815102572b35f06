package resolver

import "errors"

// Sentinel kinds for resolver errors.
var (
	// ErrPublishExhausted means every publish attempt failed and the
	// identification is lost.
	ErrPublishExhausted = errors.New("publish retries exhausted")
	// ErrPanic wraps a panic recovered while processing one sighting.
	ErrPanic = errors.New("panic while processing sighting")
)
