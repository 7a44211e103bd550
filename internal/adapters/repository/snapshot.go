package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
)

// snapshot is the on-disk image of a MemStore: the full court and facility
// sets plus the derived tiers, zstd-framed JSON.
type snapshot struct {
	SavedAt    time.Time               `json:"saved_at"`
	Facilities []model.Facility        `json:"facilities"`
	Courts     []model.Court           `json:"courts"`
	Clusters   []model.ClusterRow      `json:"clusters"`
	Aggregates []model.AggregateBucket `json:"aggregates"`
}

// SaveSnapshot writes the store state to path so a later process start can
// skip re-running the ingestion pipeline.
func (s *MemStore) SaveSnapshot(ctx context.Context, path string) error {
	s.mu.RLock()
	snap := snapshot{
		SavedAt:    time.Now().UTC(),
		Facilities: make([]model.Facility, 0, len(s.facilities)),
		Courts:     make([]model.Court, 0, len(s.courts)),
		Clusters:   append([]model.ClusterRow(nil), s.clusters...),
		Aggregates: append([]model.AggregateBucket(nil), s.aggregates...),
	}
	for _, f := range s.facilities {
		snap.Facilities = append(snap.Facilities, f)
	}
	for _, c := range s.courts {
		snap.Courts = append(snap.Courts, *c)
	}
	s.mu.RUnlock()

	sort.Slice(snap.Facilities, func(i, j int) bool { return snap.Facilities[i].ID < snap.Facilities[j].ID })
	sort.Slice(snap.Courts, func(i, j int) bool { return snap.Courts[i].ID < snap.Courts[j].ID })

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriterSize(f, 1<<20)
	enc, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}

	s.logger().Info(ctx, "snapshot saved",
		logger.String("path", path),
		logger.Int("courts", len(snap.Courts)),
		logger.Int("facilities", len(snap.Facilities)),
	)
	return nil
}

// LoadSnapshot replaces the store state with the snapshot at path.
func (s *MemStore) LoadSnapshot(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	var snap snapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	courts := make(map[uint64]*model.Court, len(snap.Courts))
	for i := range snap.Courts {
		c := snap.Courts[i]
		courts[c.ID] = &c
	}
	facilities := make(map[uint64]model.Facility, len(snap.Facilities))
	for i := range snap.Facilities {
		facilities[snap.Facilities[i].ID] = snap.Facilities[i]
	}

	s.mu.Lock()
	s.courts = courts
	s.facilities = facilities
	s.clusters = snap.Clusters
	s.aggregates = snap.Aggregates
	s.mu.Unlock()

	s.logger().Info(ctx, "snapshot loaded",
		logger.String("path", path),
		logger.Int("courts", len(snap.Courts)),
		logger.Int("facilities", len(snap.Facilities)),
	)
	return nil
}
