package confidence

import "errors"

// ErrSessionNotFound is returned by Scores for an unknown or expired session.
var ErrSessionNotFound = errors.New("session not found")
