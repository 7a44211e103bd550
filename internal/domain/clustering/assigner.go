// Package clustering groups matched courts into display clusters and
// assigns stable sequential display names.
package clustering

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

// legacyCountSuffix matches trailing parenthetical count suffixes in
// free-text names, e.g. "Park (3 Courts)".
var legacyCountSuffix = regexp.MustCompile(`(?i)\s*\(\d+\s+courts?\)\s*$`)

// Assigner groups staged courts by (facility name, sport) and assigns a
// shared cluster id plus sequential display names to each group.
type Assigner struct {
	log logger.Logger
}

// Option applies a configuration option to the Assigner.
type Option func(*Assigner)

// WithLogger sets a custom logger for the assigner.
func WithLogger(l logger.Logger) Option {
	return func(a *Assigner) {
		if l != nil {
			a.log = l
		}
	}
}

// New constructs an Assigner.
func New(opts ...Option) *Assigner {
	a := &Assigner{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Summary reports what a batch run did.
type Summary struct {
	Groups     int
	Clusters   int
	Singletons int
	Skipped    int
}

type groupKey struct {
	facility string
	sport    model.Sport
}

// Run assigns cluster ids and display names in place.
//
// Courts without a facility name are never grouped: their cluster id is
// cleared and each remains its own singleton. Multi-member groups share one
// cluster id; an id already carried by a member (lowest court id first) is
// preserved across reruns so externally cached references stay valid, and a
// fresh uuid is minted only when no member carries an unclaimed one. When a
// prior cluster splits across groups, the group holding the lowest-id
// carrier keeps the id and the others are minted fresh. Singleton groups
// keep a null cluster id. Display names "Court 1".."Court N" follow
// ascending court id, independent of batch insertion order.
func (a *Assigner) Run(ctx context.Context, courts []*model.Court) Summary {
	log := a.logger()

	groups := make(map[groupKey][]*model.Court)
	var s Summary

	for _, c := range courts {
		c.Name = StripCountSuffix(c.Name)
		if c.FacilityName == nil {
			c.ClusterID = nil
			c.DisplayName = nil
			continue
		}
		if *c.FacilityName == "" || !c.Sport.Valid() {
			log.Warn(ctx, "skipping court with malformed grouping fields",
				logger.Uint64("courtID", c.ID),
				logger.String("sport", string(c.Sport)),
			)
			c.ClusterID = nil
			c.DisplayName = nil
			metrics.RecordRecordSkipped()
			s.Skipped++
			continue
		}
		k := groupKey{facility: *c.FacilityName, sport: c.Sport}
		groups[k] = append(groups[k], c)
	}

	// Groups are processed in ascending order of their lowest member id, so
	// when a prior cluster splits across groups the one holding the lowest-id
	// carrier reaches its id first and keeps it.
	ordered := make([][]*model.Court, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		ordered = append(ordered, members)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i][0].ID < ordered[j][0].ID })

	claimed := make(map[uuid.UUID]struct{})
	for _, members := range ordered {
		s.Groups++

		if len(members) == 1 {
			members[0].ClusterID = nil
			members[0].DisplayName = nil
			s.Singletons++
			continue
		}

		id := preservedID(members, claimed)
		claimed[id] = struct{}{}
		for i, c := range members {
			cid := id
			name := displayName(i + 1)
			c.ClusterID = &cid
			c.DisplayName = &name
		}
		s.Clusters++
	}

	metrics.UpdateClustersAssigned(s.Clusters)
	return s
}

// preservedID returns the cluster id carried by the lowest-id member that
// has one, or a fresh uuid when the group has no prior identity. An id
// already claimed by another group this run is never reused: two groups
// sharing a cluster id would merge into a single derived cluster row.
// Members must already be sorted by ascending court id.
func preservedID(members []*model.Court, claimed map[uuid.UUID]struct{}) uuid.UUID {
	for _, c := range members {
		if c.ClusterID == nil {
			continue
		}
		if _, taken := claimed[*c.ClusterID]; taken {
			continue
		}
		return *c.ClusterID
	}
	return uuid.New()
}

func displayName(n int) string {
	return "Court " + strconv.Itoa(n)
}

// StripCountSuffix removes a legacy parenthetical count suffix from a
// free-text name so display names never duplicate count information.
func StripCountSuffix(name string) string {
	return legacyCountSuffix.ReplaceAllString(name, "")
}

func (a *Assigner) logger() logger.Logger {
	if a.log != nil {
		return a.log
	}
	return logger.Get()
}
