package logger

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given an uninitialized logger package", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Then the global logger is available", func() {
			So(Get(), ShouldNotBeNil)
		})

		Convey("And a named child logger can be derived", func() {
			So(Named("matcher"), ShouldNotBeNil)
		})

		Convey("And Sync is a no-op", func() {
			So(Sync(), ShouldBeNil)
		})
	})
}

func TestLoggerLevels(t *testing.T) {
	Convey("Given an initialized logger", t, func() {
		So(Init(), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging at every level", func() {
			l := Get()
			l.Debug(ctx, "debug message", String("k", "v"))
			l.Info(ctx, "info message", Int("n", 1))
			l.Warn(ctx, "warn message", Float64("f", 1.5))
			l.Error(ctx, "error message", Error(nil))

			Convey("Then no panic occurs", func() {
				So(true, ShouldBeTrue)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given the level parser", t, func() {
		So(Init(), ShouldBeNil)

		Convey("Valid levels are accepted", func() {
			for _, lvl := range []string{"debug", "info", "warn", "warning", "error", "", "  INFO "} {
				So(SetLevelString(lvl), ShouldBeNil)
			}
		})

		Convey("Unknown levels are rejected", func() {
			So(SetLevelString("verbose"), ShouldNotBeNil)
		})
	})
}
