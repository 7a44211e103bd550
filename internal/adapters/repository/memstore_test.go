package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/internal/domain/model"
	"github.com/opencourts/courtmap/pkg/logger"
)

var sfView = geo.BBox{West: -122.6, South: 37.6, East: -122.3, North: 37.9}

func seedCourt(id uint64, name string, sport model.Sport, lon, lat float64) *model.Court {
	return &model.Court{
		ID:       id,
		SourceID: "src-" + name,
		Sport:    sport,
		Centroid: orb.Point{lon, lat},
		Name:     name,
	}
}

func TestMemStoreQueryCourts(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()
		s := NewMemStore(WithLogger(logger.Get()))

		a := seedCourt(2, "Beta", model.SportBasketball, -122.47, 37.77)
		b := seedCourt(1, "Alpha", model.SportTennis, -122.46, 37.76)
		outside := seedCourt(3, "Gamma", model.SportBasketball, 139.69, 35.68)
		So(s.PutCourts(ctx, []*model.Court{a, b, outside}), ShouldBeNil)

		Convey("Results are bbox-restricted and ordered by name then id", func() {
			got, err := s.QueryCourts(ctx, sfView, geo.Filters{}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].Name, ShouldEqual, "Alpha")
			So(got[1].Name, ShouldEqual, "Beta")
		})

		Convey("Identical queries return identical results", func() {
			first, err := s.QueryCourts(ctx, sfView, geo.Filters{}, 100)
			So(err, ShouldBeNil)
			second, err := s.QueryCourts(ctx, sfView, geo.Filters{}, 100)
			So(err, ShouldBeNil)
			So(second, ShouldResemble, first)
		})

		Convey("Sport filters restrict the set", func() {
			sport := model.SportTennis
			got, err := s.QueryCourts(ctx, sfView, geo.Filters{Sport: &sport}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].Name, ShouldEqual, "Alpha")
		})

		Convey("The limit truncates after ordering", func() {
			got, err := s.QueryCourts(ctx, sfView, geo.Filters{}, 1)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].Name, ShouldEqual, "Alpha")
		})

		Convey("A non-positive limit is rejected", func() {
			_, err := s.QueryCourts(ctx, sfView, geo.Filters{}, 0)
			So(errors.Is(err, ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("An empty region yields an empty result, not an error", func() {
			empty := geo.BBox{West: 10, South: 10, East: 11, North: 11}
			got, err := s.QueryCourts(ctx, empty, geo.Filters{}, 100)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})
	})
}

func TestMemStoreClusters(t *testing.T) {
	Convey("Given courts and derived cluster rows", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()
		s := NewMemStore()

		cid := uuid.New()
		m1 := seedCourt(1, "Court A", model.SportBasketball, -122.47, 37.77)
		m2 := seedCourt(2, "Court B", model.SportBasketball, -122.469, 37.771)
		m1.ClusterID = &cid
		m2.ClusterID = &cid
		concrete := model.SurfaceConcrete
		m2.Surface = &concrete
		So(s.PutCourts(ctx, []*model.Court{m1, m2}), ShouldBeNil)

		row := model.ClusterRow{
			ClusterID:    cid,
			FacilityName: "Golden Gate Park",
			Sports:       []model.Sport{model.SportBasketball},
			MemberCount:  2,
			Centroid:     orb.Point{-122.4695, 37.7705},
			Bounds: orb.Bound{
				Min: orb.Point{-122.47, 37.77},
				Max: orb.Point{-122.469, 37.771},
			},
		}
		So(s.ReplaceClusters(ctx, []model.ClusterRow{row}), ShouldBeNil)

		Convey("An intersecting query returns the row with full count", func() {
			got, err := s.QueryClusters(ctx, sfView, geo.Filters{}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].MemberCount, ShouldEqual, 2)
		})

		Convey("A member-level filter narrows the reported count", func() {
			got, err := s.QueryClusters(ctx, sfView, geo.Filters{Surface: &concrete}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].MemberCount, ShouldEqual, 1)
		})

		Convey("A filter matching no member drops the row", func() {
			sport := model.SportVolleyball
			got, err := s.QueryClusters(ctx, sfView, geo.Filters{Sport: &sport}, 100)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)
		})

		Convey("CourtsByCluster returns members ordered by id", func() {
			members, err := s.CourtsByCluster(ctx, cid)
			So(err, ShouldBeNil)
			So(len(members), ShouldEqual, 2)
			So(members[0].ID, ShouldEqual, 1)
			So(members[1].ID, ShouldEqual, 2)
		})
	})
}

func TestMemStoreAggregates(t *testing.T) {
	Convey("Given derived aggregate buckets", t, func() {
		ctx := context.Background()
		s := NewMemStore()

		sf := orb.Bound{Min: orb.Point{-122.5, 37.7}, Max: orb.Point{-122.4, 37.8}}
		buckets := []model.AggregateBucket{
			{RegionID: "s2_a", Sport: model.SportBasketball, Count: 5, Bounds: sf},
			{RegionID: "s2_a", Sport: model.SportTennis, Count: 9, Bounds: sf},
			{RegionID: "s2_b", Sport: model.SportBasketball, Count: 2,
				Bounds: orb.Bound{Min: orb.Point{10, 10}, Max: orb.Point{11, 11}}},
		}
		So(s.ReplaceAggregates(ctx, buckets), ShouldBeNil)

		Convey("Intersection and count-descending ordering apply", func() {
			got, err := s.QueryAggregates(ctx, sfView, geo.Filters{}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].Count, ShouldEqual, 9)
			So(got[1].Count, ShouldEqual, 5)
		})

		Convey("Sport filters apply at the aggregate tier too", func() {
			sport := model.SportTennis
			got, err := s.QueryAggregates(ctx, sfView, geo.Filters{Sport: &sport}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].Sport, ShouldEqual, model.SportTennis)
		})

		Convey("Public filters apply at the aggregate tier too", func() {
			private := []model.AggregateBucket{
				{RegionID: "s2_a", Sport: model.SportBasketball, Public: model.False, Count: 2, Bounds: sf},
			}
			So(s.ReplaceAggregates(ctx, private), ShouldBeNil)

			got, err := s.QueryAggregates(ctx, sfView, geo.Filters{Public: model.True}, 100)
			So(err, ShouldBeNil)
			So(got, ShouldBeEmpty)

			got, err = s.QueryAggregates(ctx, sfView, geo.Filters{Public: model.False}, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
			So(got[0].Count, ShouldEqual, 2)
		})
	})
}

func TestMemStoreUpdateAndLookup(t *testing.T) {
	Convey("Given a seeded store", t, func() {
		ctx := context.Background()
		s := NewMemStore()
		c := seedCourt(1, "Alpha", model.SportBasketball, -122.47, 37.77)
		So(s.PutCourts(ctx, []*model.Court{c}), ShouldBeNil)

		Convey("Court returns a copy by id", func() {
			got, err := s.Court(ctx, 1)
			So(err, ShouldBeNil)
			So(got.Name, ShouldEqual, "Alpha")
		})

		Convey("Unknown ids yield ErrNotFound", func() {
			_, err := s.Court(ctx, 99)
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("UpdateCourts rejects a batch containing an unknown id", func() {
			ghost := seedCourt(42, "Ghost", model.SportTennis, 0, 0)
			err := s.UpdateCourts(ctx, []*model.Court{c, ghost})
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})

		Convey("UpdateCourts persists changes and keeps CreatedAt", func() {
			before, err := s.Court(ctx, 1)
			So(err, ShouldBeNil)

			c.Name = "Alpha Renamed"
			So(s.UpdateCourts(ctx, []*model.Court{c}), ShouldBeNil)

			after, err := s.Court(ctx, 1)
			So(err, ShouldBeNil)
			So(after.Name, ShouldEqual, "Alpha Renamed")
			So(after.CreatedAt, ShouldEqual, before.CreatedAt)
		})
	})
}

func TestMemStoreWithLock(t *testing.T) {
	Convey("Given a store with a short lock wait", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()
		s := NewMemStore(WithLockWait(50 * time.Millisecond))
		So(s.PutCourts(ctx, []*model.Court{
			seedCourt(1, "A", model.SportBasketball, -122.47, 37.77),
			seedCourt(2, "B", model.SportBasketball, -122.46, 37.77),
		}), ShouldBeNil)

		Convey("fn runs while the locks are held", func() {
			ran := false
			err := s.WithLock(ctx, []uint64{1, 2}, func(context.Context) error {
				ran = true
				return nil
			})
			So(err, ShouldBeNil)
			So(ran, ShouldBeTrue)
		})

		Convey("fn errors propagate and the locks release", func() {
			boom := errors.New("boom")
			err := s.WithLock(ctx, []uint64{1}, func(context.Context) error { return boom })
			So(errors.Is(err, boom), ShouldBeTrue)

			err = s.WithLock(ctx, []uint64{1}, func(context.Context) error { return nil })
			So(err, ShouldBeNil)
		})

		Convey("A held lock times out a second caller fast", func() {
			acquired := make(chan struct{})
			done := make(chan struct{})
			go func() {
				_ = s.WithLock(ctx, []uint64{1}, func(context.Context) error {
					close(acquired)
					<-done
					return nil
				})
			}()
			<-acquired

			err := s.WithLock(ctx, []uint64{1}, func(context.Context) error { return nil })
			So(errors.Is(err, ErrLockTimeout), ShouldBeTrue)
			close(done)
		})
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	Convey("Given a populated store", t, func() {
		So(logger.Init(), ShouldBeNil)
		ctx := context.Background()
		s := NewMemStore()

		cid := uuid.New()
		c := seedCourt(1, "Alpha", model.SportBasketball, -122.47, 37.77)
		c.ClusterID = &cid
		So(s.PutCourts(ctx, []*model.Court{c}), ShouldBeNil)
		So(s.PutFacilities(ctx, []model.Facility{{ID: 1, Name: "Golden Gate Park"}}), ShouldBeNil)
		So(s.ReplaceClusters(ctx, []model.ClusterRow{{
			ClusterID:    cid,
			FacilityName: "Golden Gate Park",
			MemberCount:  1,
			Bounds: orb.Bound{
				Min: orb.Point{-122.47, 37.77},
				Max: orb.Point{-122.47, 37.77},
			},
		}}), ShouldBeNil)

		path := filepath.Join(t.TempDir(), "courts.snap")
		So(s.SaveSnapshot(ctx, path), ShouldBeNil)

		Convey("A fresh store loads identical state", func() {
			fresh := NewMemStore()
			So(fresh.LoadSnapshot(ctx, path), ShouldBeNil)

			So(fresh.Count(ctx), ShouldEqual, 1)
			So(fresh.FacilityCount(ctx), ShouldEqual, 1)

			got, err := fresh.Court(ctx, 1)
			So(err, ShouldBeNil)
			So(got.Name, ShouldEqual, "Alpha")
			So(got.ClusterID, ShouldNotBeNil)
			So(*got.ClusterID, ShouldEqual, cid)

			rows, err := fresh.QueryClusters(ctx, sfView, geo.Filters{}, 10)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 1)
		})

		Convey("Loading a missing file fails", func() {
			fresh := NewMemStore()
			So(fresh.LoadSnapshot(ctx, filepath.Join(t.TempDir(), "absent")), ShouldNotBeNil)
		})
	})
}
