package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound      = errors.New("not found")
	ErrCycleDetected = errors.New("dependency cycle detected")
	ErrInvalidPlan   = errors.New("invalid rebalance plan")
)
