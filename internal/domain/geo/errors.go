package geo

import "errors"

// Sentinel kinds for viewport validation errors.
var (
	ErrInvalidViewport = errors.New("invalid viewport")
	ErrInvalidFilter   = errors.New("invalid filter")
)
