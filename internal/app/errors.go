package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrInvalidName rejects empty or suffix-only cluster names.
	ErrInvalidName = errors.New("invalid cluster name")
)
