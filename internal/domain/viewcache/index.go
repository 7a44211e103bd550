// Package viewcache clusters an already-fetched point set in screen-pixel
// space and caches the results keyed by a coarsened viewport, so continuous
// map movement reuses prior work instead of reclustering per frame.
package viewcache

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
)

const tileSize = 256

// Point is one member of the loaded point set.
type Point struct {
	ID       uint64
	Location orb.Point
	Court    *model.Court
}

// Feature is a renderable marker: either an aggregated cluster with a
// member count, or a single court carrying its full record.
type Feature struct {
	Location    orb.Point
	IsCluster   bool
	MemberCount int
	Court       *model.Court
}

// index holds the current point set projected lazily per query. It is
// rebuilt wholesale on SetPoints, never mutated in place.
type index struct {
	points      []Point
	pixelRadius float64
}

func newIndex(points []Point, pixelRadius float64) *index {
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &index{points: sorted, pixelRadius: pixelRadius}
}

// project converts lon/lat to web-mercator pixel coordinates at the given
// fractional zoom, so distances compare directly against the pixel radius.
func project(p orb.Point, zoom float64) (x, y float64) {
	sin := math.Sin(p.Lat() * math.Pi / 180)
	wx := (p.Lon() + 180) / 360
	wy := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	scale := tileSize * math.Exp2(zoom)
	return wx * scale, wy * scale
}

// unproject converts pixel coordinates back to lon/lat.
func unproject(x, y, zoom float64) orb.Point {
	scale := tileSize * math.Exp2(zoom)
	wx := x / scale
	wy := y / scale
	lon := wx*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*wy))) * 180 / math.Pi
	return orb.Point{lon, lat}
}

type projected struct {
	x, y float64
	pt   *Point
}

// cluster groups the in-view points greedily: each unprocessed point
// absorbs every other unprocessed point within the pixel radius, producing
// a weighted-centroid cluster feature, or a singleton when nothing is near.
// Point order is ascending id, so output is deterministic for a given set.
func (ix *index) cluster(bbox geo.BBox, zoom float64) ([]Feature, error) {
	var inView []projected
	for i := range ix.points {
		p := &ix.points[i]
		if !finitePoint(p.Location) {
			return nil, ErrBadGeometry
		}
		if !bbox.Contains(p.Location) {
			continue
		}
		x, y := project(p.Location, zoom)
		inView = append(inView, projected{x: x, y: y, pt: p})
	}

	r2 := ix.pixelRadius * ix.pixelRadius
	processed := make([]bool, len(inView))
	features := make([]Feature, 0, len(inView))

	for i := range inView {
		if processed[i] {
			continue
		}
		processed[i] = true

		members := []int{i}
		for j := i + 1; j < len(inView); j++ {
			if processed[j] {
				continue
			}
			dx := inView[j].x - inView[i].x
			dy := inView[j].y - inView[i].y
			if dx*dx+dy*dy <= r2 {
				processed[j] = true
				members = append(members, j)
			}
		}

		if len(members) == 1 {
			features = append(features, Feature{
				Location:    inView[i].pt.Location,
				MemberCount: 1,
				Court:       inView[i].pt.Court,
			})
			continue
		}

		var sumX, sumY float64
		for _, m := range members {
			sumX += inView[m].x
			sumY += inView[m].y
		}
		n := float64(len(members))
		features = append(features, Feature{
			Location:    unproject(sumX/n, sumY/n, zoom),
			IsCluster:   true,
			MemberCount: len(members),
		})
	}
	return features, nil
}

// raw returns the in-view point set ungrouped, the fallback when
// clustering fails.
func (ix *index) raw(bbox geo.BBox) []Feature {
	features := make([]Feature, 0, len(ix.points))
	for i := range ix.points {
		p := &ix.points[i]
		if !finitePoint(p.Location) || !bbox.Contains(p.Location) {
			continue
		}
		features = append(features, Feature{
			Location:    p.Location,
			MemberCount: 1,
			Court:       p.Court,
		})
	}
	return features
}

func finitePoint(p orb.Point) bool {
	return !math.IsNaN(p.Lon()) && !math.IsInf(p.Lon(), 0) &&
		!math.IsNaN(p.Lat()) && !math.IsInf(p.Lat(), 0)
}
