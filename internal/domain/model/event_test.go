package model_test

import (
	"math"
	"testing"
	"time"

	model "github.com/okian/guardline/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewEvent(t *testing.T) {
	convey.Convey("Given an event without category or severity", t, func() {
		ts := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

		convey.Convey("When the kind is a known voice kind", func() {
			e := model.NewEvent("e-1", model.KindScream, "", "", ts)

			convey.Convey("Then category and severity are derived", func() {
				convey.So(e.Category, convey.ShouldEqual, model.CategoryVoice)
				convey.So(e.Severity, convey.ShouldEqual, model.SeverityCritical)
				convey.So(e.Timestamp, convey.ShouldEqual, ts)
			})
		})

		convey.Convey("When category and severity are supplied", func() {
			e := model.NewEvent("e-2", model.KindFall, model.CategoryBehavior, model.SeverityLow, ts)

			convey.Convey("Then the supplied values win", func() {
				convey.So(e.Category, convey.ShouldEqual, model.CategoryBehavior)
				convey.So(e.Severity, convey.ShouldEqual, model.SeverityLow)
			})
		})

		convey.Convey("When the kind is unknown", func() {
			e := model.NewEvent("e-3", "meteor", "", "", ts)

			convey.Convey("Then it is a low severity behavior event", func() {
				convey.So(e.Category, convey.ShouldEqual, model.CategoryBehavior)
				convey.So(e.Severity, convey.ShouldEqual, model.SeverityLow)
				convey.So(model.Describe(e.Kind), convey.ShouldEqual, "Unknown event")
			})
		})
	})
}

func TestSeverityOf(t *testing.T) {
	convey.Convey("Severity derivation follows the kind groups", t, func() {
		cases := map[model.EventKind]model.Severity{
			model.KindFall:        model.SeverityCritical,
			model.KindSnatch:      model.SeverityCritical,
			model.KindHelp:        model.SeverityCritical,
			model.KindScream:      model.SeverityCritical,
			model.KindStruggle:    model.SeverityHigh,
			model.KindUnsafeZone:  model.SeverityHigh,
			model.KindSilence:     model.SeverityHigh,
			model.KindRunning:     model.SeverityMedium,
			model.KindDeviation:   model.SeverityMedium,
			model.KindNightTravel: model.SeverityMedium,
			model.KindBreathing:   model.SeverityMedium,
			model.KindUnusualStop: model.SeverityLow,
		}
		for kind, want := range cases {
			convey.So(model.SeverityOf(kind), convey.ShouldEqual, want)
		}
	})

	convey.Convey("The critical kind set is independent of severity", t, func() {
		convey.So(model.IsCriticalKind(model.KindHelp), convey.ShouldBeTrue)
		convey.So(model.IsCriticalKind(model.KindStruggle), convey.ShouldBeFalse)
	})
}

func TestLocationValid(t *testing.T) {
	convey.Convey("Given locations", t, func() {
		convey.So(model.Location{Lat: 28.6, Lng: 77.2}.Valid(), convey.ShouldBeTrue)
		convey.So(model.Location{Lat: 91, Lng: 0}.Valid(), convey.ShouldBeFalse)
		convey.So(model.Location{Lat: 0, Lng: -181}.Valid(), convey.ShouldBeFalse)
		convey.So(model.Location{Lat: math.NaN(), Lng: 0}.Valid(), convey.ShouldBeFalse)
		convey.So(model.Location{Lat: 0, Lng: math.Inf(1)}.Valid(), convey.ShouldBeFalse)
	})
}

func TestLevelFor(t *testing.T) {
	convey.Convey("Scores map onto threat levels", t, func() {
		convey.So(model.LevelFor(0), convey.ShouldEqual, model.LevelSafe)
		convey.So(model.LevelFor(29), convey.ShouldEqual, model.LevelSafe)
		convey.So(model.LevelFor(30), convey.ShouldEqual, model.LevelCaution)
		convey.So(model.LevelFor(50), convey.ShouldEqual, model.LevelDanger)
		convey.So(model.LevelFor(74), convey.ShouldEqual, model.LevelDanger)
		convey.So(model.LevelFor(75), convey.ShouldEqual, model.LevelCritical)
		convey.So(model.LevelFor(100), convey.ShouldEqual, model.LevelCritical)
	})
}
