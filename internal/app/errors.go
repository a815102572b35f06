package service

import "errors"

var (
	// ErrStartup wraps every failure that prevents the service from starting.
	ErrStartup = errors.New("service startup failed")
	// ErrNotStarted is returned by queries made while the service is not running.
	ErrNotStarted = errors.New("service not started")
)
