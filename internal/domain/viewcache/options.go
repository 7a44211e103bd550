package viewcache

import (
	"time"

	"github.com/opencourts/courtmap/pkg/logger"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithCapacity sets the maximum number of cached viewport results.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithPixelRadius sets the screen-pixel clustering radius.
func WithPixelRadius(r float64) Option {
	return func(c *Cache) {
		if r > 0 {
			c.pixelRadius = r
		}
	}
}

// WithDebounce sets the quiet period for Request.
func WithDebounce(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}
