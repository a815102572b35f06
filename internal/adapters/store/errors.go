package store

import "errors"

// Sentinel kinds for store errors.
var (
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	ErrClosed    = errors.New("store closed")
)
