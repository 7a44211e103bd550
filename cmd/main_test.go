package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/opencourts/courtmap/internal/adapters/http/api"
	"github.com/opencourts/courtmap/internal/adapters/repository"
	app "github.com/opencourts/courtmap/internal/app"
	"github.com/opencourts/courtmap/internal/config"
	"github.com/opencourts/courtmap/pkg/logger"
)

func TestMainWiring(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.So(logger.Init(), convey.ShouldBeNil)

		convey.Convey("When testing configuration loading", func() {
			t.Setenv("COURTMAP_ADDR", ":8080")
			t.Setenv("COURTMAP_RESULT_LIMIT", "100")

			cfg, err := config.Load()
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.ResultLimit, convey.ShouldEqual, 100)
		})

		convey.Convey("When building the store without a DSN", func() {
			cfg := config.New()
			store, err := buildStore(context.Background(), cfg, logger.Get())
			convey.So(err, convey.ShouldBeNil)
			defer store.Close()

			_, ok := store.(*repository.MemStore)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When registering the API routes", func() {
			svc := app.New(app.WithLogger(logger.Get()))
			mux := http.NewServeMux()
			api.NewServer(svc).Register(context.Background(), mux)

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("When the HTTP server is configured", func() {
			srv := &http.Server{
				Addr:              ":0",
				ReadTimeout:       readTimeout,
				WriteTimeout:      writeTimeout,
				ReadHeaderTimeout: readHeaderTimeout,
			}
			convey.So(srv.ReadTimeout, convey.ShouldEqual, 10*time.Second)
			convey.So(srv.ReadHeaderTimeout, convey.ShouldEqual, 5*time.Second)
		})
	})
}
