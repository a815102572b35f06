package simulate

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrRejected      = errors.New("sighting rejected")
)
