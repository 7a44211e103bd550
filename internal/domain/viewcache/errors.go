package viewcache

import "errors"

var (
	// ErrBadGeometry is returned by the spatial index when the point set
	// contains a non-finite coordinate.
	ErrBadGeometry = errors.New("viewcache: point set contains invalid geometry")

	// ErrClosed is returned by Request after the cache has been closed.
	ErrClosed = errors.New("viewcache: cache closed")
)
