package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("court not found")
	ErrInvalidLimit = errors.New("invalid result limit")
	ErrLockTimeout  = errors.New("row lock wait timed out")
	ErrUnavailable  = errors.New("backing store unavailable")
)
