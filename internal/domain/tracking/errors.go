package tracking

import "errors"

// ErrTrackNotFound is returned by Get for an unknown or expired person.
var ErrTrackNotFound = errors.New("person track not found")
