// Package repository defines the court store interface and errors.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
)

// Store provides read/write access to courts, facilities and the derived
// viewport tiers. Query results use deterministic orderings so identical
// queries over unchanged data return identical result sets.
type Store interface {
	// PutFacilities loads facility polygons for a pipeline run.
	PutFacilities(ctx context.Context, facilities []model.Facility) error
	// PutCourts inserts or replaces court rows by id.
	PutCourts(ctx context.Context, courts []*model.Court) error

	// ReplaceClusters swaps the derived mid-zoom cluster rows wholesale.
	ReplaceClusters(ctx context.Context, rows []model.ClusterRow) error
	// ReplaceAggregates swaps the derived low-zoom buckets wholesale.
	ReplaceAggregates(ctx context.Context, buckets []model.AggregateBucket) error

	// QueryCourts returns individual courts whose centroid lies in the box
	// and that satisfy every concrete filter, ordered by name then id, capped
	// at limit. The cap is a lossy truncation, not a significance guarantee.
	QueryCourts(ctx context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.Court, error)
	// QueryClusters returns cluster rows whose bounds intersect the box,
	// restricted to members satisfying the filters, ordered by member count
	// desc then facility name then cluster id, capped at limit.
	QueryClusters(ctx context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.ClusterRow, error)
	// QueryAggregates returns buckets whose bounds intersect the box and
	// that satisfy the filters, ordered by count desc then region, capped
	// at limit.
	QueryAggregates(ctx context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.AggregateBucket, error)

	// Court returns one court by id. Returns ErrNotFound if unknown.
	Court(ctx context.Context, id uint64) (model.Court, error)
	// CourtsByCluster returns every member of a cluster, ordered by id asc.
	CourtsByCluster(ctx context.Context, clusterID uuid.UUID) ([]model.Court, error)
	// UpdateCourts writes back mutated court rows. Every id must already
	// exist; unknown ids fail the whole batch with ErrNotFound.
	UpdateCourts(ctx context.Context, courts []*model.Court) error

	// WithLock runs fn while holding row-level locks over exactly the given
	// court ids, so concurrent editors of cluster-shared fields serialize.
	// Lock acquisition waits a bounded time and then fails fast with
	// ErrLockTimeout, which is retryable.
	WithLock(ctx context.Context, courtIDs []uint64, fn func(ctx context.Context) error) error

	// Count returns the number of courts stored.
	Count(ctx context.Context) int
	// FacilityCount returns the number of facilities stored.
	FacilityCount(ctx context.Context) int

	// Close releases backing resources.
	Close() error
}
