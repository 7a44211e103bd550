// Package geo defines viewport types and validation for map queries.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/opencourts/courtmap/internal/domain/model"
)

// Zoom bounds accepted by viewport queries.
const (
	MinZoom = 0
	MaxZoom = 20
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Validate checks that all coordinates are finite, inside the WGS84 range,
// and correctly ordered. Invalid boxes are rejected, never clamped.
func (b BBox) Validate() error {
	for _, v := range []float64{b.West, b.South, b.East, b.North} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: coordinates must be finite", ErrInvalidViewport)
		}
	}
	if b.West < -180 || b.East > 180 || b.South < -90 || b.North > 90 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidViewport)
	}
	if b.West >= b.East {
		return fmt.Errorf("%w: west must be less than east", ErrInvalidViewport)
	}
	if b.South >= b.North {
		return fmt.Errorf("%w: south must be less than north", ErrInvalidViewport)
	}
	return nil
}

// Bound converts the box to an orb.Bound.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Contains reports whether the point lies within the box (inclusive).
func (b BBox) Contains(p orb.Point) bool {
	return p.Lon() >= b.West && p.Lon() <= b.East &&
		p.Lat() >= b.South && p.Lat() <= b.North
}

// Intersects reports whether the box intersects the given bound.
func (b BBox) Intersects(o orb.Bound) bool {
	return b.Bound().Intersects(o)
}

// Viewport is a bounding box plus an integer zoom level.
type Viewport struct {
	BBox BBox
	Zoom int
}

// Validate checks the box and the zoom range.
func (v Viewport) Validate() error {
	if err := v.BBox.Validate(); err != nil {
		return err
	}
	if v.Zoom < MinZoom || v.Zoom > MaxZoom {
		return fmt.Errorf("%w: zoom %d outside [%d,%d]", ErrInvalidViewport, v.Zoom, MinZoom, MaxZoom)
	}
	return nil
}

// Filters is the typed filter set applied identically on every storage tier.
// Nil fields and Unknown tri-states are wildcards; concrete values are ANDed.
type Filters struct {
	Sport   *model.Sport
	Surface *model.Surface
	Public  model.TriState
}

// Validate rejects unrecognized enum values before any spatial work.
func (f Filters) Validate() error {
	if f.Sport != nil && !f.Sport.Valid() {
		return fmt.Errorf("%w: unrecognized sport %q", ErrInvalidFilter, *f.Sport)
	}
	if f.Surface != nil && !f.Surface.Valid() {
		return fmt.Errorf("%w: unrecognized surface %q", ErrInvalidFilter, *f.Surface)
	}
	return nil
}

// MatchCourt reports whether a court satisfies every concrete filter.
func (f Filters) MatchCourt(c *model.Court) bool {
	if f.Sport != nil && c.Sport != *f.Sport {
		return false
	}
	if f.Surface != nil && (c.Surface == nil || *c.Surface != *f.Surface) {
		return false
	}
	return c.Public.Matches(f.Public)
}

// MatchAggregate reports whether an aggregate bucket satisfies every
// concrete filter, with the same semantics as MatchCourt: a bucket of
// unknown public-access courts never matches a concrete Public filter.
func (f Filters) MatchAggregate(b *model.AggregateBucket) bool {
	if f.Sport != nil && b.Sport != *f.Sport {
		return false
	}
	if f.Surface != nil && (b.Surface == nil || *b.Surface != *f.Surface) {
		return false
	}
	return b.Public.Matches(f.Public)
}
