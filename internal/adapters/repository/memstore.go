package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

const defaultLockWait = 2 * time.Second

// MemStore is an in-memory Store implementation.
//
// Reads take the store-wide RWMutex; WithLock additionally serializes on
// per-court row locks so cluster-wide edits cannot interleave. Row locks
// are acquired in ascending id order, which rules out lock-order cycles
// between concurrent WithLock callers.
type MemStore struct {
	mu         sync.RWMutex
	courts     map[uint64]*model.Court
	facilities map[uint64]model.Facility
	clusters   []model.ClusterRow
	aggregates []model.AggregateBucket

	rowMu sync.Mutex
	rows  map[uint64]chan struct{} // per-court lock, buffered cap 1

	lockWait time.Duration
	log      logger.Logger
}

var _ Store = (*MemStore)(nil)

// NewMemStore constructs an empty MemStore.
func NewMemStore(opts ...Option) *MemStore {
	s := &MemStore{
		courts:     make(map[uint64]*model.Court),
		facilities: make(map[uint64]model.Facility),
		rows:       make(map[uint64]chan struct{}),
		lockWait:   defaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutFacilities inserts or replaces facilities by id.
func (s *MemStore) PutFacilities(_ context.Context, facilities []model.Facility) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range facilities {
		s.facilities[facilities[i].ID] = facilities[i]
	}
	metrics.UpdateFacilityCount(len(s.facilities))
	return nil
}

// PutCourts inserts or replaces courts by id. The store keeps its own
// copies; later caller mutations are not visible until written back.
func (s *MemStore) PutCourts(_ context.Context, courts []*model.Court) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, c := range courts {
		cp := *c
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
		cp.UpdatedAt = now
		s.courts[cp.ID] = &cp
	}
	metrics.UpdateCourtCount(len(s.courts))
	metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// ReplaceClusters swaps the derived cluster rows wholesale.
func (s *MemStore) ReplaceClusters(_ context.Context, rows []model.ClusterRow) error {
	cp := make([]model.ClusterRow, len(rows))
	copy(cp, rows)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters = cp
	return nil
}

// ReplaceAggregates swaps the derived aggregate buckets wholesale.
func (s *MemStore) ReplaceAggregates(_ context.Context, buckets []model.AggregateBucket) error {
	cp := make([]model.AggregateBucket, len(buckets))
	copy(cp, buckets)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggregates = cp
	return nil
}

// QueryCourts returns matching courts ordered by name asc then id asc.
func (s *MemStore) QueryCourts(_ context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.Court, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Court, 0)
	for _, c := range s.courts {
		if !bbox.Contains(c.Centroid) || !filters.MatchCourt(c) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// QueryClusters returns cluster rows whose bounds intersect the box. The
// filter set is evaluated against member courts, so surface and public
// filters narrow clusters the same way they narrow individual courts; the
// reported member count covers only matching members. Ordering is member
// count desc, then facility name asc, then cluster id asc.
func (s *MemStore) QueryClusters(_ context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.ClusterRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make(map[uuid.UUID]int)
	for _, c := range s.courts {
		if c.ClusterID == nil || !filters.MatchCourt(c) {
			continue
		}
		members[*c.ClusterID]++
	}

	out := make([]model.ClusterRow, 0)
	for i := range s.clusters {
		r := s.clusters[i]
		if !bbox.Intersects(r.Bounds) {
			continue
		}
		n := members[r.ClusterID]
		if n == 0 {
			continue
		}
		r.MemberCount = n
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MemberCount != out[j].MemberCount {
			return out[i].MemberCount > out[j].MemberCount
		}
		if out[i].FacilityName != out[j].FacilityName {
			return out[i].FacilityName < out[j].FacilityName
		}
		return out[i].ClusterID.String() < out[j].ClusterID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// QueryAggregates returns matching buckets ordered by count desc, then
// region asc, then sport asc.
func (s *MemStore) QueryAggregates(_ context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.AggregateBucket, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AggregateBucket, 0)
	for i := range s.aggregates {
		b := s.aggregates[i]
		if !bbox.Intersects(b.Bounds) || !filters.MatchAggregate(&b) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].RegionID != out[j].RegionID {
			return out[i].RegionID < out[j].RegionID
		}
		return out[i].Sport < out[j].Sport
	})
	if len(out) > limit {
		out = out[:limit]
	}
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// Court returns one court by id.
func (s *MemStore) Court(_ context.Context, id uint64) (model.Court, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courts[id]
	if !ok {
		return model.Court{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return *c, nil
}

// CourtsByCluster returns every member of a cluster ordered by id asc.
func (s *MemStore) CourtsByCluster(_ context.Context, clusterID uuid.UUID) ([]model.Court, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Court, 0)
	for _, c := range s.courts {
		if c.ClusterID != nil && *c.ClusterID == clusterID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateCourts writes back mutated rows. Unknown ids fail the whole batch.
func (s *MemStore) UpdateCourts(_ context.Context, courts []*model.Court) error {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range courts {
		if _, ok := s.courts[c.ID]; !ok {
			return fmt.Errorf("%w: id %d", ErrNotFound, c.ID)
		}
	}
	now := time.Now().UTC()
	for _, c := range courts {
		cp := *c
		cp.CreatedAt = s.courts[c.ID].CreatedAt
		cp.UpdatedAt = now
		s.courts[cp.ID] = &cp
	}
	metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// WithLock acquires per-court row locks in ascending id order, runs fn,
// and releases. Acquisition past the bounded wait fails fast with
// ErrLockTimeout so a stuck editor never blocks siblings indefinitely.
func (s *MemStore) WithLock(ctx context.Context, courtIDs []uint64, fn func(ctx context.Context) error) error {
	ids := make([]uint64, len(courtIDs))
	copy(ids, courtIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	deadline := time.Now().Add(s.lockWait)
	var held []chan struct{}
	release := func() {
		for _, ch := range held {
			<-ch
		}
	}

	for _, id := range ids {
		ch := s.rowLock(id)
		wait := time.Until(deadline)
		if wait <= 0 {
			release()
			metrics.RecordLockTimeout()
			return fmt.Errorf("%w: court %d", ErrLockTimeout, id)
		}
		timer := time.NewTimer(wait)
		select {
		case ch <- struct{}{}:
			timer.Stop()
			held = append(held, ch)
		case <-timer.C:
			release()
			metrics.RecordLockTimeout()
			return fmt.Errorf("%w: court %d", ErrLockTimeout, id)
		case <-ctx.Done():
			timer.Stop()
			release()
			return ctx.Err()
		}
	}
	defer release()
	return fn(ctx)
}

// rowLock returns the lock channel for a court, creating it on first use.
func (s *MemStore) rowLock(id uint64) chan struct{} {
	s.rowMu.Lock()
	defer s.rowMu.Unlock()
	ch, ok := s.rows[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[id] = ch
	}
	return ch
}

// Count returns the number of courts stored.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.courts)
}

// FacilityCount returns the number of facilities stored.
func (s *MemStore) FacilityCount(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facilities)
}

// Close is a no-op for the in-memory store.
func (s *MemStore) Close() error { return nil }

func (s *MemStore) logger() logger.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.Get()
}
