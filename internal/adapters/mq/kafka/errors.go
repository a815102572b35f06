package kafka

import "errors"

// Sentinel kinds for broker errors.
var (
	ErrClient   = errors.New("kafka client")
	ErrDelivery = errors.New("kafka delivery failed")
)
