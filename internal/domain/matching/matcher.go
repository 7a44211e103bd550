// Package matching resolves court centroids to containing facility polygons.
package matching

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

// Matcher assigns facility names to staged courts by point-in-polygon
// containment. It never mutates facility records.
type Matcher struct {
	log logger.Logger
}

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithLogger sets a custom logger for the matcher.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.log = l
		}
	}
}

// New constructs a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Summary reports what a batch run did.
type Summary struct {
	Matched   int
	Unmatched int
	Ambiguous int
	Skipped   int
}

// Match resolves a centroid against the facility list.
// Zero containing polygons leaves the court unmatched. When several
// polygons contain the point, the smallest planar area wins, ties broken
// by facility name ascending; ambiguous reports whether a tie-break fired.
func (m *Matcher) Match(centroid orb.Point, facilities []model.Facility) (name string, ok, ambiguous bool) {
	var (
		bestName string
		bestArea float64
		hits     int
	)
	for i := range facilities {
		f := &facilities[i]
		if !validBoundary(f.Boundary) {
			continue
		}
		if !planar.PolygonContains(f.Boundary, centroid) {
			continue
		}
		area := planar.Area(f.Boundary)
		if hits == 0 || area < bestArea || (area == bestArea && f.Name < bestName) {
			bestName = f.Name
			bestArea = area
		}
		hits++
	}
	if hits == 0 {
		return "", false, false
	}
	return bestName, true, hits > 1
}

// Run stages facility names onto the given courts. Malformed geometry on
// either side is a per-record skip with a logged warning, never a batch
// abort. Returns a summary of the run.
func (m *Matcher) Run(ctx context.Context, courts []*model.Court, facilities []model.Facility) Summary {
	log := m.logger()

	usable := make([]model.Facility, 0, len(facilities))
	for i := range facilities {
		if !validBoundary(facilities[i].Boundary) {
			log.Warn(ctx, "skipping facility with malformed boundary",
				logger.Uint64("facilityID", facilities[i].ID),
				logger.String("name", facilities[i].Name),
			)
			metrics.RecordRecordSkipped()
			continue
		}
		usable = append(usable, facilities[i])
	}

	var s Summary
	for _, c := range courts {
		if !validPoint(c.Centroid) {
			log.Warn(ctx, "skipping court with malformed centroid",
				logger.Uint64("courtID", c.ID),
				logger.String("sourceID", c.SourceID),
			)
			metrics.RecordRecordSkipped()
			s.Skipped++
			continue
		}
		name, ok, ambiguous := m.Match(c.Centroid, usable)
		if ambiguous {
			log.Warn(ctx, "court centroid contained by multiple facilities; smallest area wins",
				logger.Uint64("courtID", c.ID),
				logger.String("facility", name),
			)
			metrics.RecordAmbiguousMatch()
			s.Ambiguous++
		}
		if !ok {
			c.FacilityName = nil
			metrics.RecordCourtUnmatched()
			s.Unmatched++
			continue
		}
		n := name
		c.FacilityName = &n
		metrics.RecordCourtMatched()
		s.Matched++
	}
	return s
}

func (m *Matcher) logger() logger.Logger {
	if m.log != nil {
		return m.log
	}
	return logger.Get()
}

// validBoundary requires at least one closed outer ring of four points.
func validBoundary(p orb.Polygon) bool {
	if len(p) == 0 || len(p[0]) < 4 {
		return false
	}
	for _, ring := range p {
		for _, pt := range ring {
			if !validPoint(pt) {
				return false
			}
		}
	}
	return true
}

func validPoint(p orb.Point) bool {
	return !math.IsNaN(p.Lon()) && !math.IsInf(p.Lon(), 0) &&
		!math.IsNaN(p.Lat()) && !math.IsInf(p.Lat(), 0)
}
