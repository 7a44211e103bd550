package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
)

// regionLevel sets the S2 cell level used for aggregate buckets.
// Level 7 cells are roughly 100 km across, matching zoom levels 0-6
// where one bucket covers a metro area or more.
const regionLevel = 7

// RegionID returns a stable S2-based region identifier for a point.
// The id is deterministic for a given location, so rebuilding aggregates
// from an unchanged court set reproduces identical bucket keys.
func RegionID(p orb.Point) string {
	ll := s2.LatLngFromDegrees(p.Lat(), p.Lon())
	cellID := s2.CellIDFromLatLng(ll).Parent(regionLevel)
	return fmt.Sprintf("s2_%d", uint64(cellID))
}

// RegionBound returns the rectangular bound of the region containing p.
func RegionBound(p orb.Point) orb.Bound {
	ll := s2.LatLngFromDegrees(p.Lat(), p.Lon())
	cell := s2.CellFromCellID(s2.CellIDFromLatLng(ll).Parent(regionLevel))
	rect := cell.RectBound()
	lo, hi := rect.Lo(), rect.Hi()
	return orb.Bound{
		Min: orb.Point{lo.Lng.Degrees(), lo.Lat.Degrees()},
		Max: orb.Point{hi.Lng.Degrees(), hi.Lat.Degrees()},
	}
}
