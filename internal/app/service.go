// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opencourts/courtmap/internal/adapters/repository"
	"github.com/opencourts/courtmap/internal/domain/clustering"
	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/matching"
	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/internal/domain/viewcache"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

// Zoom tier boundaries for viewport routing.
const (
	maxAggregateZoom = 6
	maxClusterZoom   = 12
)

// defaultResultLimit caps every tier's result set. The cap is a lossy
// truncation under the tier's deterministic ordering, not a
// top-K-by-significance guarantee.
const defaultResultLimit = 750

// Tier names reported in viewport results and metrics labels.
const (
	TierAggregates = "aggregates"
	TierClusters   = "clusters"
	TierCourts     = "courts"
)

// ViewportResult is the tier-tagged outcome of a viewport query. Exactly
// one of the three slices is populated, matching Tier.
type ViewportResult struct {
	Tier       string                  `json:"tier"`
	Aggregates []model.AggregateBucket `json:"aggregates,omitempty"`
	Clusters   []model.ClusterRow      `json:"clusters,omitempty"`
	Courts     []model.Court           `json:"courts,omitempty"`
}

// Stats summarizes the service state.
type Stats struct {
	Courts     int `json:"courts"`
	Facilities int `json:"facilities"`
}

// PipelineSummary aggregates the matcher and assigner summaries for one
// ingestion run.
type PipelineSummary struct {
	Matching   matching.Summary
	Clustering clustering.Summary
	Courts     int
	Clusters   int
	Aggregates int
}

// Service wires the store, matcher and assigner behind the read and
// pipeline entry points.
type Service struct {
	store       repository.Store
	matcher     *matching.Matcher
	assigner    *clustering.Assigner
	resultLimit int
	cacheOpts   []viewcache.Option
	log         logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store.
func WithStore(st repository.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithResultLimit sets the per-tier viewport result cap.
func WithResultLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.resultLimit = n
		}
	}
}

// WithViewCacheOptions sets the options applied to every cache built by
// NewViewCache, e.g. capacity, pixel radius and debounce from configuration.
func WithViewCacheOptions(opts ...viewcache.Option) Option {
	return func(s *Service) {
		s.cacheOpts = append(s.cacheOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a Service. Without WithStore it runs on an empty
// in-memory store.
func New(opts ...Option) *Service {
	s := &Service{
		resultLimit: defaultResultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	s.matcher = matching.New(matching.WithLogger(s.log))
	s.assigner = clustering.New(clustering.WithLogger(s.log))
	return s
}

// QueryViewport validates the viewport and filters, then routes to the
// storage tier for the zoom level: aggregates through zoom 6, cluster rows
// through zoom 12, individual courts above. No matching rows is an empty
// result, not an error; store unavailability surfaces as a retryable error.
func (s *Service) QueryViewport(ctx context.Context, vp geo.Viewport, filters geo.Filters) (ViewportResult, error) {
	if err := vp.Validate(); err != nil {
		metrics.RecordViewportQueryError("validation")
		return ViewportResult{}, err
	}
	if err := filters.Validate(); err != nil {
		metrics.RecordViewportQueryError("validation")
		return ViewportResult{}, err
	}

	tier := tierFor(vp.Zoom)
	start := time.Now()
	res := ViewportResult{Tier: tier}
	var n int
	var err error

	switch tier {
	case TierAggregates:
		res.Aggregates, err = s.store.QueryAggregates(ctx, vp.BBox, filters, s.resultLimit)
		n = len(res.Aggregates)
	case TierClusters:
		res.Clusters, err = s.store.QueryClusters(ctx, vp.BBox, filters, s.resultLimit)
		n = len(res.Clusters)
	default:
		res.Courts, err = s.store.QueryCourts(ctx, vp.BBox, filters, s.resultLimit)
		n = len(res.Courts)
	}
	if err != nil {
		metrics.RecordViewportQueryError("store")
		return ViewportResult{}, fmt.Errorf("query %s tier: %w", tier, err)
	}

	metrics.RecordViewportQuery(tier)
	metrics.RecordViewportQueryDuration(tier, float64(time.Since(start).Milliseconds()))
	metrics.RecordViewportResultCount(tier, n)
	return res, nil
}

func tierFor(zoom int) string {
	switch {
	case zoom <= maxAggregateZoom:
		return TierAggregates
	case zoom <= maxClusterZoom:
		return TierClusters
	default:
		return TierCourts
	}
}

// Court returns one court by id.
func (s *Service) Court(ctx context.Context, id uint64) (model.Court, error) {
	return s.store.Court(ctx, id)
}

// NewViewCache builds a client clustering cache for one map view, carrying
// the service's configured capacity, pixel radius and debounce. The caller
// owns the cache and must Close it on view teardown.
func (s *Service) NewViewCache() *viewcache.Cache {
	opts := make([]viewcache.Option, 0, len(s.cacheOpts)+1)
	opts = append(opts, s.cacheOpts...)
	opts = append(opts, viewcache.WithLogger(s.log))
	return viewcache.New(opts...)
}

// Stats returns current store counts.
func (s *Service) Stats(ctx context.Context) Stats {
	return Stats{
		Courts:     s.store.Count(ctx),
		Facilities: s.store.FacilityCount(ctx),
	}
}

// RunPipeline executes one ingestion run: match courts to facilities,
// assign clusters and display names, persist the courts, then rebuild the
// derived cluster rows and aggregate buckets. The matcher and assigner run
// single-threaded; concurrent readers may observe partial updates, which
// is acceptable for this enrichment path.
func (s *Service) RunPipeline(ctx context.Context, facilities []model.Facility, courts []*model.Court) (PipelineSummary, error) {
	log := s.logger()
	start := time.Now()

	if err := s.store.PutFacilities(ctx, facilities); err != nil {
		return PipelineSummary{}, fmt.Errorf("persist facilities: %w", err)
	}

	sum := PipelineSummary{}
	sum.Matching = s.matcher.Run(ctx, courts, facilities)
	sum.Clustering = s.assigner.Run(ctx, courts)

	if err := s.store.PutCourts(ctx, courts); err != nil {
		return PipelineSummary{}, fmt.Errorf("persist courts: %w", err)
	}

	rows := clustering.BuildClusterRows(courts)
	if err := s.store.ReplaceClusters(ctx, rows); err != nil {
		return PipelineSummary{}, fmt.Errorf("replace cluster rows: %w", err)
	}
	buckets := clustering.BuildAggregates(courts)
	if err := s.store.ReplaceAggregates(ctx, buckets); err != nil {
		return PipelineSummary{}, fmt.Errorf("replace aggregates: %w", err)
	}

	sum.Courts = len(courts)
	sum.Clusters = len(rows)
	sum.Aggregates = len(buckets)

	metrics.RecordPipelineRun()
	metrics.RecordPipelineDuration(float64(time.Since(start).Milliseconds()))
	log.Info(ctx, "pipeline run complete",
		logger.Int("courts", sum.Courts),
		logger.Int("matched", sum.Matching.Matched),
		logger.Int("clusters", sum.Clusters),
		logger.Int("aggregates", sum.Aggregates),
	)
	return sum, nil
}

// RenameCluster renames every member of a cluster to base plus its
// sequential suffix, e.g. base "North Courts" gives "North Courts 1".."N".
// The whole sibling set is locked before state is re-read and written, so
// two concurrent editors cannot leave members with inconsistent names.
func (s *Service) RenameCluster(ctx context.Context, clusterID uuid.UUID, base string) error {
	base = clustering.StripCountSuffix(base)
	if base == "" {
		return fmt.Errorf("%w: name is empty after suffix stripping", ErrInvalidName)
	}

	members, err := s.store.CourtsByCluster(ctx, clusterID)
	if err != nil {
		return fmt.Errorf("load cluster members: %w", err)
	}
	if len(members) == 0 {
		return fmt.Errorf("%w: cluster %s", repository.ErrNotFound, clusterID)
	}

	ids := make([]uint64, len(members))
	for i := range members {
		ids[i] = members[i].ID
	}

	return s.store.WithLock(ctx, ids, func(ctx context.Context) error {
		// Re-read under the lock; the pre-lock read only chose the lock set.
		locked, err := s.store.CourtsByCluster(ctx, clusterID)
		if err != nil {
			return fmt.Errorf("reload cluster members: %w", err)
		}
		updated := make([]*model.Court, len(locked))
		for i := range locked {
			c := locked[i]
			c.Name = fmt.Sprintf("%s %d", base, i+1)
			updated[i] = &c
		}
		return s.store.UpdateCourts(ctx, updated)
	})
}

func (s *Service) logger() logger.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.Get()
}
