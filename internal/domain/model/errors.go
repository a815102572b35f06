package model

import "errors"

var (
	// ErrMalformedEvent marks a sighting payload that failed boundary validation.
	ErrMalformedEvent = errors.New("malformed sighting event")
	// ErrMalformedUpdate marks a tracking update missing required object fields.
	ErrMalformedUpdate = errors.New("malformed tracking update")
)
