package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewManager(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		reg := prometheus.NewRegistry()

		Convey("When creating a manager with options", func() {
			m := NewManager(
				WithNamespace("testns"),
				WithSubsystem("testsub"),
				WithPrometheusRegistry(reg),
			)

			Convey("Then the manager is configured", func() {
				So(m, ShouldNotBeNil)
				So(m.namespace, ShouldEqual, "testns")
				So(m.subsystem, ShouldEqual, "testsub")
			})

			Convey("And the registry holds the metric families after use", func() {
				m.viewportQueries.WithLabelValues("courts").Inc()
				m.cacheHits.Inc()
				families, err := reg.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})

		Convey("When metrics are disabled", func() {
			m := NewManager(WithMetricsEnabled(false), WithPrometheusRegistry(reg))

			Convey("Then nothing is registered", func() {
				So(m, ShouldNotBeNil)
				families, err := reg.Gather()
				So(err, ShouldBeNil)
				So(len(families), ShouldEqual, 0)
			})
		})
	})
}

func TestGlobalHelpers(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then the helpers do not panic", func() {
			RecordViewportQuery("clusters")
			RecordViewportQueryDuration("clusters", 1.5)
			RecordViewportQueryError("invalid_viewport")
			RecordViewportResultCount("courts", 12)
			RecordCacheHit()
			RecordCacheMiss()
			RecordCacheEviction()
			UpdateCacheEntries(3)
			RecordCacheRecomputeDuration(0.4)
			RecordPipelineRun()
			RecordPipelineDuration(120)
			RecordCourtMatched()
			RecordCourtUnmatched()
			RecordAmbiguousMatch()
			RecordRecordSkipped()
			UpdateClustersAssigned(7)
			RecordStoreQueryLatency(0.2)
			RecordStoreUpdateLatency(0.3)
			RecordLockTimeout()
			UpdateCourtCount(100)
			UpdateFacilityCount(10)
			RecordHTTPRequest("courts", "GET", "200")
			RecordHTTPRequestDuration("courts", "GET", "200", 2.0)
			RecordErrorByComponent("repository", "not_found")
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
