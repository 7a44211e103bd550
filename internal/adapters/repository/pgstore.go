package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
	"github.com/opencourts/courtmap/pkg/metrics"
)

const (
	defaultPGLockTimeout = 2 * time.Second

	// lockNotAvailable is the Postgres error code raised when lock_timeout
	// expires while waiting on a row lock.
	lockNotAvailable = "55P03"
)

// PGStore is a Postgres-backed Store implementation over a pgx pool.
//
// Expected schema: facilities(id, name, boundary), courts(id, source_id,
// sport, surface, lon, lat, boundary, name, facility_name, cluster_id,
// display_name, public, lights, school, created_at, updated_at),
// clusters(cluster_id, facility_name, sports, member_count, lon, lat,
// min_lon, min_lat, max_lon, max_lat) and aggregates(region_id, sport,
// surface, public, count, min_lon, min_lat, max_lon, max_lat). Boundaries
// are stored as GeoJSON jsonb; tri-states as smallint.
type PGStore struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
	log         logger.Logger
}

var _ Store = (*PGStore)(nil)

// NewPGStore connects to Postgres and verifies the connection.
func NewPGStore(ctx context.Context, dsn string, opts ...PGOption) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s := &PGStore{pool: pool, lockTimeout: defaultPGLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PutFacilities upserts facilities by id.
func (s *PGStore) PutFacilities(ctx context.Context, facilities []model.Facility) error {
	for i := range facilities {
		f := &facilities[i]
		_, err := s.pool.Exec(ctx, `
			INSERT INTO facilities (id, name, boundary)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = $2, boundary = $3`,
			int64(f.ID), f.Name, polygonJSON(f.Boundary))
		if err != nil {
			return s.mapErr(err)
		}
	}
	return nil
}

// PutCourts upserts courts by id.
func (s *PGStore) PutCourts(ctx context.Context, courts []*model.Court) error {
	start := time.Now()
	for _, c := range courts {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO courts
				(id, source_id, sport, surface, lon, lat, boundary, name,
				 facility_name, cluster_id, display_name, public, lights, school,
				 created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now(), now())
			ON CONFLICT (id) DO UPDATE SET
				source_id = $2, sport = $3, surface = $4, lon = $5, lat = $6,
				boundary = $7, name = $8, facility_name = $9, cluster_id = $10,
				display_name = $11, public = $12, lights = $13, school = $14,
				updated_at = now()`,
			int64(c.ID), c.SourceID, string(c.Sport), surfaceArg(c.Surface),
			c.Centroid.Lon(), c.Centroid.Lat(), polygonJSON(c.Boundary), c.Name,
			c.FacilityName, clusterArg(c.ClusterID), c.DisplayName,
			int16(c.Public), int16(c.Lights), c.School)
		if err != nil {
			return s.mapErr(err)
		}
	}
	metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// ReplaceClusters swaps the cluster rows wholesale in one transaction.
func (s *PGStore) ReplaceClusters(ctx context.Context, rows []model.ClusterRow) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM clusters`); err != nil {
			return err
		}
		for i := range rows {
			r := &rows[i]
			sports := make([]string, len(r.Sports))
			for j, sp := range r.Sports {
				sports[j] = string(sp)
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO clusters
					(cluster_id, facility_name, sports, member_count, lon, lat,
					 min_lon, min_lat, max_lon, max_lat)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				r.ClusterID.String(), r.FacilityName, sports, r.MemberCount,
				r.Centroid.Lon(), r.Centroid.Lat(),
				r.Bounds.Min.Lon(), r.Bounds.Min.Lat(),
				r.Bounds.Max.Lon(), r.Bounds.Max.Lat())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceAggregates swaps the aggregate buckets wholesale in one transaction.
func (s *PGStore) ReplaceAggregates(ctx context.Context, buckets []model.AggregateBucket) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM aggregates`); err != nil {
			return err
		}
		for i := range buckets {
			b := &buckets[i]
			_, err := tx.Exec(ctx, `
				INSERT INTO aggregates
					(region_id, sport, surface, public, count,
					 min_lon, min_lat, max_lon, max_lat)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				b.RegionID, string(b.Sport), surfaceArg(b.Surface), int16(b.Public),
				b.Count,
				b.Bounds.Min.Lon(), b.Bounds.Min.Lat(),
				b.Bounds.Max.Lon(), b.Bounds.Max.Lat())
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// QueryCourts returns matching courts ordered by name asc then id asc.
func (s *PGStore) QueryCourts(ctx context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.Court, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()

	q := `
		SELECT id, source_id, sport, surface, lon, lat, name,
		       facility_name, cluster_id::text, display_name,
		       public, lights, school, created_at, updated_at
		FROM courts
		WHERE lon >= $1 AND lon <= $2 AND lat >= $3 AND lat <= $4`
	args := []any{bbox.West, bbox.East, bbox.South, bbox.North}
	q, args = appendCourtFilters(q, args, filters, "")
	q += ` ORDER BY name ASC, id ASC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer rows.Close()

	out := make([]model.Court, 0)
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, s.mapErr(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr(err)
	}
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// QueryClusters returns cluster rows intersecting the box, counting only
// member courts that satisfy the filters. Ordering is member count desc,
// then facility name asc, then cluster id asc.
func (s *PGStore) QueryClusters(ctx context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.ClusterRow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()

	q := `
		SELECT cl.cluster_id::text, cl.facility_name, cl.sports, COUNT(c.id),
		       cl.lon, cl.lat, cl.min_lon, cl.min_lat, cl.max_lon, cl.max_lat
		FROM clusters cl
		JOIN courts c ON c.cluster_id = cl.cluster_id
		WHERE cl.max_lon >= $1 AND cl.min_lon <= $2
		  AND cl.max_lat >= $3 AND cl.min_lat <= $4`
	args := []any{bbox.West, bbox.East, bbox.South, bbox.North}
	q, args = appendCourtFilters(q, args, filters, "c.")
	q += `
		GROUP BY cl.cluster_id, cl.facility_name, cl.sports,
		         cl.lon, cl.lat, cl.min_lon, cl.min_lat, cl.max_lon, cl.max_lat
		ORDER BY COUNT(c.id) DESC, cl.facility_name ASC, cl.cluster_id::text ASC
		LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer rows.Close()

	out := make([]model.ClusterRow, 0)
	for rows.Next() {
		var r model.ClusterRow
		var id string
		var sports []string
		var count int64
		var lon, lat, minLon, minLat, maxLon, maxLat float64
		if err := rows.Scan(&id, &r.FacilityName, &sports, &count,
			&lon, &lat, &minLon, &minLat, &maxLon, &maxLat); err != nil {
			return nil, s.mapErr(err)
		}
		cid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse cluster id %q: %w", id, err)
		}
		r.ClusterID = cid
		r.MemberCount = int(count)
		r.Centroid = orb.Point{lon, lat}
		r.Bounds = orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
		r.Sports = make([]model.Sport, len(sports))
		for i, sp := range sports {
			r.Sports[i] = model.Sport(sp)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr(err)
	}
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// QueryAggregates returns matching buckets ordered by count desc, then
// region asc, then sport asc.
func (s *PGStore) QueryAggregates(ctx context.Context, bbox geo.BBox, filters geo.Filters, limit int) ([]model.AggregateBucket, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()

	q := `
		SELECT region_id, sport, surface, public, count,
		       min_lon, min_lat, max_lon, max_lat
		FROM aggregates
		WHERE max_lon >= $1 AND min_lon <= $2 AND max_lat >= $3 AND min_lat <= $4`
	args := []any{bbox.West, bbox.East, bbox.South, bbox.North}
	if filters.Sport != nil {
		args = append(args, string(*filters.Sport))
		q += ` AND sport = $` + strconv.Itoa(len(args))
	}
	if filters.Surface != nil {
		args = append(args, string(*filters.Surface))
		q += ` AND surface = $` + strconv.Itoa(len(args))
	}
	if filters.Public != model.Unknown {
		args = append(args, int16(filters.Public))
		q += ` AND public = $` + strconv.Itoa(len(args))
	}
	q += ` ORDER BY count DESC, region_id ASC, sport ASC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer rows.Close()

	out := make([]model.AggregateBucket, 0)
	for rows.Next() {
		var (
			b                              model.AggregateBucket
			sport                          string
			surface                        *string
			public                         int16
			minLon, minLat, maxLon, maxLat float64
		)
		if err := rows.Scan(&b.RegionID, &sport, &surface, &public, &b.Count,
			&minLon, &minLat, &maxLon, &maxLat); err != nil {
			return nil, s.mapErr(err)
		}
		b.Sport = model.Sport(sport)
		b.Public = model.TriState(public)
		if surface != nil {
			sf := model.Surface(*surface)
			b.Surface = &sf
		}
		b.Bounds = orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr(err)
	}
	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return out, nil
}

// Court returns one court by id.
func (s *PGStore) Court(ctx context.Context, id uint64) (model.Court, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, sport, surface, lon, lat, name,
		       facility_name, cluster_id::text, display_name,
		       public, lights, school, created_at, updated_at
		FROM courts WHERE id = $1`, int64(id))
	if err != nil {
		return model.Court{}, s.mapErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Court{}, s.mapErr(err)
		}
		return model.Court{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return scanCourt(rows)
}

// CourtsByCluster returns every member of a cluster ordered by id asc.
func (s *PGStore) CourtsByCluster(ctx context.Context, clusterID uuid.UUID) ([]model.Court, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_id, sport, surface, lon, lat, name,
		       facility_name, cluster_id::text, display_name,
		       public, lights, school, created_at, updated_at
		FROM courts WHERE cluster_id = $1 ORDER BY id ASC`, clusterID.String())
	if err != nil {
		return nil, s.mapErr(err)
	}
	defer rows.Close()

	out := make([]model.Court, 0)
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, s.mapErr(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr(err)
	}
	return out, nil
}

// UpdateCourts writes back mutated rows. Unknown ids fail the whole batch.
func (s *PGStore) UpdateCourts(ctx context.Context, courts []*model.Court) error {
	start := time.Now()
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, c := range courts {
			tag, err := tx.Exec(ctx, `
				UPDATE courts SET
					sport = $2, surface = $3, lon = $4, lat = $5, name = $6,
					facility_name = $7, cluster_id = $8, display_name = $9,
					public = $10, lights = $11, school = $12, updated_at = now()
				WHERE id = $1`,
				int64(c.ID), string(c.Sport), surfaceArg(c.Surface),
				c.Centroid.Lon(), c.Centroid.Lat(), c.Name,
				c.FacilityName, clusterArg(c.ClusterID), c.DisplayName,
				int16(c.Public), int16(c.Lights), c.School)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: id %d", ErrNotFound, c.ID)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.RecordStoreUpdateLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// WithLock runs fn inside a transaction holding FOR UPDATE row locks over
// exactly the given court ids, with lock_timeout bounding the wait.
func (s *PGStore) WithLock(ctx context.Context, courtIDs []uint64, fn func(ctx context.Context) error) error {
	ids := make([]int64, len(courtIDs))
	for i, id := range courtIDs {
		ids[i] = int64(id)
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		timeout := strconv.FormatInt(s.lockTimeout.Milliseconds(), 10)
		if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '`+timeout+`ms'`); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT id FROM courts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
		if err != nil {
			return err
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// Count returns the number of courts stored. Errors degrade to zero; the
// caller treats this as a gauge, not a correctness input.
func (s *PGStore) Count(ctx context.Context) int {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM courts`).Scan(&n); err != nil {
		s.logger().Warn(ctx, "court count query failed", logger.Error(err))
		return 0
	}
	return int(n)
}

// FacilityCount returns the number of facilities stored.
func (s *PGStore) FacilityCount(ctx context.Context) int {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM facilities`).Scan(&n); err != nil {
		s.logger().Warn(ctx, "facility count query failed", logger.Error(err))
		return 0
	}
	return int(n)
}

// Close releases the connection pool.
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// inTx wraps fn in a transaction with error mapping and rollback.
func (s *PGStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.mapErr(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return s.mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return s.mapErr(err)
	}
	return nil
}

// mapErr translates driver errors into the package sentinels. Lock waits
// that hit lock_timeout become the retryable ErrLockTimeout; everything
// else that is not already a sentinel becomes retryable ErrUnavailable.
func (s *PGStore) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidLimit) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == lockNotAvailable {
		metrics.RecordLockTimeout()
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *PGStore) logger() logger.Logger {
	if s.log != nil {
		return s.log
	}
	return logger.Get()
}

// appendCourtFilters adds the concrete filter predicates for court columns,
// optionally prefixed with a table alias.
func appendCourtFilters(q string, args []any, filters geo.Filters, prefix string) (string, []any) {
	if filters.Sport != nil {
		args = append(args, string(*filters.Sport))
		q += ` AND ` + prefix + `sport = $` + strconv.Itoa(len(args))
	}
	if filters.Surface != nil {
		args = append(args, string(*filters.Surface))
		q += ` AND ` + prefix + `surface = $` + strconv.Itoa(len(args))
	}
	if filters.Public != model.Unknown {
		args = append(args, int16(filters.Public))
		q += ` AND ` + prefix + `public = $` + strconv.Itoa(len(args))
	}
	return q, args
}

func scanCourt(rows pgx.Rows) (model.Court, error) {
	var (
		c              model.Court
		id             int64
		sport          string
		surface        *string
		lon, lat       float64
		clusterID      *string
		public, lights int16
	)
	if err := rows.Scan(&id, &c.SourceID, &sport, &surface, &lon, &lat, &c.Name,
		&c.FacilityName, &clusterID, &c.DisplayName,
		&public, &lights, &c.School, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return model.Court{}, err
	}
	c.ID = uint64(id)
	c.Sport = model.Sport(sport)
	if surface != nil {
		sf := model.Surface(*surface)
		c.Surface = &sf
	}
	c.Centroid = orb.Point{lon, lat}
	if clusterID != nil {
		cid, err := uuid.Parse(*clusterID)
		if err != nil {
			return model.Court{}, fmt.Errorf("parse cluster id %q: %w", *clusterID, err)
		}
		c.ClusterID = &cid
	}
	c.Public = model.TriState(public)
	c.Lights = model.TriState(lights)
	return c, nil
}

func surfaceArg(s *model.Surface) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func clusterArg(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	v := id.String()
	return &v
}

// polygonJSON renders a polygon as GeoJSON-style coordinate arrays for the
// jsonb boundary columns. Nil polygons store as SQL NULL.
func polygonJSON(p orb.Polygon) any {
	if p == nil {
		return nil
	}
	rings := make([][][2]float64, len(p))
	for i, ring := range p {
		rings[i] = make([][2]float64, len(ring))
		for j, pt := range ring {
			rings[i][j] = [2]float64{pt.Lon(), pt.Lat()}
		}
	}
	return rings
}
