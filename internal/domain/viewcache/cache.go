package viewcache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

const (
	defaultCapacity    = 50
	defaultPixelRadius = 40
	defaultDebounce    = 500 * time.Millisecond

	// Coarsening steps for the cache key: zoom snaps to half levels and
	// bbox coordinates to a tenth of a degree, so small pans and zooms
	// land on the same entry.
	zoomStep     = 0.5
	bboxRounding = 0.1
)

// cacheKey is the coarsened viewport. Coordinates are stored as scaled
// integers so float rounding noise cannot split equal keys.
type cacheKey struct {
	zoomHalf                 int32
	west, south, east, north int32
}

func keyFor(bbox geo.BBox, zoom float64) cacheKey {
	return cacheKey{
		zoomHalf: int32(math.Round(zoom / zoomStep)),
		west:     int32(math.Round(bbox.West / bboxRounding)),
		south:    int32(math.Round(bbox.South / bboxRounding)),
		east:     int32(math.Round(bbox.East / bboxRounding)),
		north:    int32(math.Round(bbox.North / bboxRounding)),
	}
}

// Cache is an explicit view-lifecycle object: create one per map view and
// Close it on teardown. Results are cached per coarsened viewport and
// evicted oldest-inserted-first beyond capacity. Eviction is FIFO by
// insertion, not least-recently-used: a hit does not refresh an entry's
// position in the eviction order.
type Cache struct {
	mu       sync.Mutex
	idx      *index
	entries  map[cacheKey][]Feature
	order    []cacheKey
	capacity int

	pixelRadius float64
	debounce    time.Duration
	timer       *time.Timer
	pendingSeq  uint64
	closed      bool

	log logger.Logger
}

// New constructs a Cache with an empty point set.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:     make(map[cacheKey][]Feature),
		capacity:    defaultCapacity,
		pixelRadius: defaultPixelRadius,
		debounce:    defaultDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.idx = newIndex(nil, c.pixelRadius)
	return c
}

// SetPoints replaces the loaded point set, rebuilding the spatial index
// and dropping every cached result. Call it on viewport fetch or filter
// change, not on map movement.
func (c *Cache) SetPoints(points []Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idx = newIndex(points, c.pixelRadius)
	c.entries = make(map[cacheKey][]Feature)
	c.order = c.order[:0]
	metrics.UpdateCacheEntries(0)
}

// GetClusters returns the clustered features for the viewport. Inputs that
// coarsen to the same key return the stored slice without recomputation.
// A clustering failure is never surfaced: the raw ungrouped points are
// returned instead.
func (c *Cache) GetClusters(bbox geo.BBox, zoom float64) []Feature {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyFor(bbox, zoom)
	if cached, ok := c.entries[key]; ok {
		metrics.RecordCacheHit()
		return cached
	}
	metrics.RecordCacheMiss()

	start := time.Now()
	features, err := c.idx.cluster(bbox, zoom)
	metrics.RecordCacheRecomputeDuration(float64(time.Since(start).Milliseconds()))
	if err != nil {
		c.logger().Warn(context.Background(), "clustering failed, serving raw points",
			logger.Error(err),
			logger.Float64("zoom", zoom),
		)
		metrics.RecordErrorByComponent("viewcache", "recompute")
		return c.idx.raw(bbox)
	}

	c.store(key, features)
	return features
}

// store inserts an entry and evicts the oldest beyond capacity.
func (c *Cache) store(key cacheKey, features []Feature) {
	c.entries[key] = features
	c.order = append(c.order, key)
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		metrics.RecordCacheEviction()
	}
	metrics.UpdateCacheEntries(len(c.entries))
}

// Request schedules a clustered recomputation after the debounce quiet
// period and delivers the result to fn. A newer Request before the period
// elapses supersedes the pending one: only the latest viewport is ever
// delivered, so no stale cluster set reaches the renderer.
func (c *Cache) Request(bbox geo.BBox, zoom float64, fn func([]Feature)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	c.pendingSeq++
	seq := c.pendingSeq
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		stale := c.closed || seq != c.pendingSeq
		c.mu.Unlock()
		if stale {
			return
		}
		fn(c.GetClusters(bbox, zoom))
	})
	return nil
}

// Len reports the number of cached viewport entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close cancels any pending request and marks the cache unusable for
// further Request calls. GetClusters keeps working so a view teardown
// racing a final read stays safe.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Cache) logger() logger.Logger {
	if c.log != nil {
		return c.log
	}
	return logger.Get()
}
