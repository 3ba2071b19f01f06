package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When it is initialized with the default writer", func() {
			So(Init(), ShouldBeNil)

			Convey("Then Get and Slog return usable loggers", func() {
				So(Get(), ShouldNotBeNil)
				So(Slog(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When it is initialized with an unknown format", func() {
			err := InitWithWriter(&bytes.Buffer{}, "xml")

			Convey("Then it reports the format", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "xml")
			})
		})
	})
}

func TestLoggerOutput(t *testing.T) {
	Convey("Given a JSON logger on a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf, "json"), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging with fields", func() {
			Get().Named("registry").Info(ctx, "joined",
				String("subject", "s-1"),
				Int("members", 2),
				Bool("observer", true),
				Error(errors.New("boom")),
			)

			Convey("Then the fields and caller are present", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"component":"registry"`)
				So(out, ShouldContainSubstring, `"subject":"s-1"`)
				So(out, ShouldContainSubstring, `"members":2`)
				So(out, ShouldContainSubstring, `"source":"logger_test.go`)
			})
		})

		Convey("When the level is raised to warn", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "shown")

			Convey("Then info lines are dropped", func() {
				So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
				So(buf.String(), ShouldContainSubstring, "shown")
			})
		})

		Convey("When an unknown level is given", func() {
			So(SetLevelString("loud"), ShouldNotBeNil)
		})
	})
}

func TestStandaloneLogger(t *testing.T) {
	Convey("Given a standalone logger", t, func() {
		var buf bytes.Buffer
		l := New(&buf, slog.LevelDebug).With(String("conn", "c-1"))

		Convey("When debugging", func() {
			l.Debug(context.Background(), "frame")

			Convey("Then the bound fields are kept", func() {
				So(buf.String(), ShouldContainSubstring, "conn=c-1")
			})
		})

		Convey("Discard never writes", func() {
			So(func() { Discard().Error(context.Background(), "x") }, ShouldNotPanic)
		})
	})
}
