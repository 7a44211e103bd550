package viewcache

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/opencourts/courtmap/internal/domain/geo"
	"github.com/opencourts/courtmap/pkg/logger"
)

var sfView = geo.BBox{West: -122.6, South: 37.6, East: -122.3, North: 37.9}

func pt(id uint64, lon, lat float64) Point {
	return Point{ID: id, Location: orb.Point{lon, lat}}
}

func TestClustering(t *testing.T) {
	Convey("Given a cache over a small point set", t, func() {
		So(logger.Init(), ShouldBeNil)
		c := New(WithLogger(logger.Get()))

		Convey("Two points inside the pixel radius merge into one cluster", func() {
			c.SetPoints([]Point{
				pt(1, -122.470, 37.770),
				pt(2, -122.4701, 37.7701),
			})
			features := c.GetClusters(sfView, 12)

			So(len(features), ShouldEqual, 1)
			So(features[0].IsCluster, ShouldBeTrue)
			So(features[0].MemberCount, ShouldEqual, 2)
		})

		Convey("The merged centroid sits between the members", func() {
			c.SetPoints([]Point{
				pt(1, -122.470, 37.770),
				pt(2, -122.4702, 37.770),
			})
			features := c.GetClusters(sfView, 12)

			So(len(features), ShouldEqual, 1)
			lon := features[0].Location.Lon()
			So(lon, ShouldBeLessThan, -122.470)
			So(lon, ShouldBeGreaterThan, -122.4702)
		})

		Convey("Distant points stay separate singletons", func() {
			c.SetPoints([]Point{
				pt(1, -122.47, 37.77),
				pt(2, -122.35, 37.65),
			})
			features := c.GetClusters(sfView, 12)

			So(len(features), ShouldEqual, 2)
			So(features[0].IsCluster, ShouldBeFalse)
			So(features[0].MemberCount, ShouldEqual, 1)
			So(features[1].IsCluster, ShouldBeFalse)
		})

		Convey("The same pair separates again at a higher zoom", func() {
			points := []Point{
				pt(1, -122.470, 37.770),
				pt(2, -122.468, 37.770),
			}
			c.SetPoints(points)
			So(len(c.GetClusters(sfView, 10)), ShouldEqual, 1)
			So(len(c.GetClusters(sfView, 18)), ShouldEqual, 2)
		})

		Convey("Points outside the viewport are excluded", func() {
			c.SetPoints([]Point{
				pt(1, -122.47, 37.77),
				pt(2, 139.69, 35.68),
			})
			So(len(c.GetClusters(sfView, 12)), ShouldEqual, 1)
		})

		Convey("Invalid geometry falls back to raw points, never an error", func() {
			c.SetPoints([]Point{
				pt(1, -122.47, 37.77),
				pt(2, math.NaN(), 37.77),
			})
			features := c.GetClusters(sfView, 12)

			So(len(features), ShouldEqual, 1)
			So(features[0].IsCluster, ShouldBeFalse)
		})
	})
}

func TestCacheKeyReuse(t *testing.T) {
	Convey("Given a populated cache", t, func() {
		So(logger.Init(), ShouldBeNil)
		c := New(WithLogger(logger.Get()))
		c.SetPoints([]Point{pt(1, -122.47, 37.77)})

		first := c.GetClusters(sfView, 12)

		Convey("A viewport that rounds to the same key reuses the entry", func() {
			nudged := geo.BBox{West: -122.62, South: 37.58, East: -122.31, North: 37.91}
			second := c.GetClusters(nudged, 12.2)

			So(len(c.entries), ShouldEqual, 1)
			So(&second[0], ShouldEqual, &first[0])
		})

		Convey("A viewport past the rounding step recomputes", func() {
			c.GetClusters(sfView, 13)
			So(len(c.entries), ShouldEqual, 2)
		})

		Convey("SetPoints drops every cached entry", func() {
			c.SetPoints([]Point{pt(2, -122.47, 37.77)})
			So(c.Len(), ShouldEqual, 0)
		})
	})
}

func TestEviction(t *testing.T) {
	Convey("Given a cache at capacity", t, func() {
		So(logger.Init(), ShouldBeNil)
		c := New(WithCapacity(3), WithLogger(logger.Get()))
		c.SetPoints([]Point{pt(1, -122.47, 37.77)})

		for z := 0; z < 4; z++ {
			c.GetClusters(sfView, float64(z))
		}

		Convey("The oldest-inserted entry is gone", func() {
			So(c.Len(), ShouldEqual, 3)
			_, ok := c.entries[keyFor(sfView, 0)]
			So(ok, ShouldBeFalse)
		})

		Convey("And the most recent entries survive", func() {
			_, ok := c.entries[keyFor(sfView, 3)]
			So(ok, ShouldBeTrue)
		})
	})
}

func TestRequestDebounce(t *testing.T) {
	Convey("Given a cache with a short quiet period", t, func() {
		So(logger.Init(), ShouldBeNil)
		c := New(WithDebounce(30*time.Millisecond), WithLogger(logger.Get()))
		c.SetPoints([]Point{pt(1, -122.47, 37.77)})

		Convey("Only the latest of a burst of requests is delivered", func() {
			var mu sync.Mutex
			var delivered []float64
			record := func(zoom float64) func([]Feature) {
				return func([]Feature) {
					mu.Lock()
					delivered = append(delivered, zoom)
					mu.Unlock()
				}
			}

			So(c.Request(sfView, 10, record(10)), ShouldBeNil)
			So(c.Request(sfView, 11, record(11)), ShouldBeNil)
			So(c.Request(sfView, 12, record(12)), ShouldBeNil)

			time.Sleep(120 * time.Millisecond)

			mu.Lock()
			defer mu.Unlock()
			So(delivered, ShouldResemble, []float64{12})
		})

		Convey("A closed cache refuses new requests", func() {
			c.Close()
			So(c.Request(sfView, 10, func([]Feature) {}), ShouldEqual, ErrClosed)
		})

		Convey("Close cancels a pending request", func() {
			fired := false
			So(c.Request(sfView, 10, func([]Feature) { fired = true }), ShouldBeNil)
			c.Close()
			time.Sleep(60 * time.Millisecond)
			So(fired, ShouldBeFalse)
		})
	})
}

func TestProjectionRoundTrip(t *testing.T) {
	Convey("Given representative coordinates", t, func() {
		points := []orb.Point{
			{-122.47, 37.77},
			{139.69, 35.68},
			{0, 0},
			{-179.9, -55.0},
		}
		for _, p := range points {
			x, y := project(p, 14)
			back := unproject(x, y, 14)
			So(back.Lon(), ShouldAlmostEqual, p.Lon(), 1e-6)
			So(back.Lat(), ShouldAlmostEqual, p.Lat(), 1e-6)
		}
	})
}
