// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Facility is a named polygon area (park, school, ...) that may contain
// one or more courts. Immutable once loaded for a given pipeline run.
type Facility struct {
	ID       uint64
	Name     string
	Boundary orb.Polygon
}

// Court is a single playable court. Centroid is required for queryability;
// Boundary is optional. FacilityName, ClusterID and DisplayName are filled
// in by the ingestion pipeline, not by the source dataset.
type Court struct {
	ID       uint64
	SourceID string // external dataset id, unique
	Sport    Sport
	Surface  *Surface

	Centroid orb.Point
	Boundary orb.Polygon // optional; nil when the source has no outline

	Name         string  // free-text name from the source, may carry legacy "(N Courts)" suffixes
	FacilityName *string // set by the facility matcher
	ClusterID    *uuid.UUID
	DisplayName  *string // sequential within a cluster, e.g. "Court 2"

	Public TriState
	Lights TriState
	School bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClusterRow is the persisted mid-zoom representation of a cluster:
// one row per cluster id, carrying member count, the combined sport list
// and the enclosing bounds of its members.
type ClusterRow struct {
	ClusterID    uuid.UUID
	FacilityName string
	Sports       []Sport
	MemberCount  int
	Centroid     orb.Point
	Bounds       orb.Bound
}

// AggregateBucket is the precomputed low-zoom representation: a count per
// coarse region, sport, surface and public-access state, so every filter
// dimension applied to individual courts can be applied to buckets too.
type AggregateBucket struct {
	RegionID string
	Sport    Sport
	Surface  *Surface
	Public   TriState
	Count    int
	Bounds   orb.Bound
}
