package clustering

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
)

// BuildClusterRows derives the persisted mid-zoom cluster rows from an
// assigned court set: one row per cluster id with member count, combined
// sport list, mean centroid and enclosing bounds. Output ordering is
// deterministic (facility name asc, then cluster id asc).
func BuildClusterRows(courts []*model.Court) []model.ClusterRow {
	byID := make(map[string][]*model.Court)
	for _, c := range courts {
		if c.ClusterID == nil {
			continue
		}
		byID[c.ClusterID.String()] = append(byID[c.ClusterID.String()], c)
	}

	rows := make([]model.ClusterRow, 0, len(byID))
	for _, members := range byID {
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		var sumLon, sumLat float64
		bounds := orb.Bound{Min: members[0].Centroid, Max: members[0].Centroid}
		sports := make(map[model.Sport]struct{})
		for _, c := range members {
			sumLon += c.Centroid.Lon()
			sumLat += c.Centroid.Lat()
			bounds = bounds.Extend(c.Centroid)
			sports[c.Sport] = struct{}{}
		}

		sportList := make([]model.Sport, 0, len(sports))
		for sp := range sports {
			sportList = append(sportList, sp)
		}
		sort.Slice(sportList, func(i, j int) bool { return sportList[i] < sportList[j] })

		n := float64(len(members))
		rows = append(rows, model.ClusterRow{
			ClusterID:    *members[0].ClusterID,
			FacilityName: derefFacility(members[0]),
			Sports:       sportList,
			MemberCount:  len(members),
			Centroid:     orb.Point{sumLon / n, sumLat / n},
			Bounds:       bounds,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].FacilityName != rows[j].FacilityName {
			return rows[i].FacilityName < rows[j].FacilityName
		}
		return rows[i].ClusterID.String() < rows[j].ClusterID.String()
	})
	return rows
}

// BuildAggregates derives the precomputed low-zoom buckets: a count per
// (region, sport, surface, public) with the region's enclosing bounds.
// Output ordering is deterministic (region asc, sport asc, surface asc,
// public asc).
func BuildAggregates(courts []*model.Court) []model.AggregateBucket {
	type key struct {
		region  string
		sport   model.Sport
		surface model.Surface // empty string when the court has no surface
		public  model.TriState
	}
	counts := make(map[key]*model.AggregateBucket)

	for _, c := range courts {
		k := key{region: geo.RegionID(c.Centroid), sport: c.Sport, public: c.Public}
		if c.Surface != nil {
			k.surface = *c.Surface
		}
		b, ok := counts[k]
		if !ok {
			b = &model.AggregateBucket{
				RegionID: k.region,
				Sport:    k.sport,
				Public:   k.public,
				Bounds:   geo.RegionBound(c.Centroid),
			}
			if c.Surface != nil {
				sf := *c.Surface
				b.Surface = &sf
			}
			counts[k] = b
		}
		b.Count++
	}

	buckets := make([]model.AggregateBucket, 0, len(counts))
	for _, b := range counts {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].RegionID != buckets[j].RegionID {
			return buckets[i].RegionID < buckets[j].RegionID
		}
		if buckets[i].Sport != buckets[j].Sport {
			return buckets[i].Sport < buckets[j].Sport
		}
		if surfaceKey(buckets[i].Surface) != surfaceKey(buckets[j].Surface) {
			return surfaceKey(buckets[i].Surface) < surfaceKey(buckets[j].Surface)
		}
		return buckets[i].Public < buckets[j].Public
	})
	return buckets
}

func surfaceKey(s *model.Surface) model.Surface {
	if s == nil {
		return ""
	}
	return *s
}

func derefFacility(c *model.Court) string {
	if c.FacilityName == nil {
		return ""
	}
	return *c.FacilityName
}
