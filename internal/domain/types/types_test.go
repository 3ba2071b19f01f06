package types_test

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	model "github.com/okian/guardline/internal/domain/model"
	types "github.com/okian/guardline/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMessage(t *testing.T) {
	Convey("Given an outbound location risk message", t, func() {
		msg := types.Message{
			Type: types.TypeLocationRisk,
			Data: types.LocationRisk{Risk: 20, Zone: "Unsafe Zone", Message: "Entering high-risk zone"},
		}

		Convey("When it is encoded", func() {
			raw, err := json.Marshal(msg)
			So(err, ShouldBeNil)

			Convey("Then the wire form carries type and data", func() {
				So(string(raw), ShouldEqual,
					`{"type":"alert:location-risk","data":{"risk":20,"zone":"Unsafe Zone","message":"Entering high-risk zone"}}`)
			})
		})
	})

	Convey("Given a message without data", t, func() {
		raw, err := json.Marshal(types.Message{Type: types.TypeHealthPing})
		So(err, ShouldBeNil)
		So(string(raw), ShouldEqual, `{"type":"health:ping"}`)
	})
}

func TestEnvelope(t *testing.T) {
	Convey("Given an inbound event frame", t, func() {
		frame := []byte(`{"type":"event:detected","data":{"subjectId":"s-1","type":"fall",` +
			`"location":{"lat":28.6,"lng":77.2},"behavior":{"routeDeviation":true,"crowdDensity":"low"},` +
			`"recentEvents":[{"type":"scream","category":"voice","severity":"critical","timestamp":"2026-01-01T00:00:00Z"}]}}`)

		Convey("When the envelope is decoded lazily", func() {
			var env types.Envelope[json.RawMessage]
			So(json.Unmarshal(frame, &env), ShouldBeNil)
			So(env.Type, ShouldEqual, types.TypeEventDetected)

			var req types.EventRequest
			So(json.Unmarshal(env.Data, &req), ShouldBeNil)

			Convey("Then the payload is fully populated", func() {
				So(req.SubjectID, ShouldEqual, "s-1")
				So(req.Type, ShouldEqual, model.KindFall)
				So(req.Location, ShouldResemble, &model.Location{Lat: 28.6, Lng: 77.2})
				So(req.Behavior.RouteDeviation, ShouldBeTrue)
				So(req.Behavior.CrowdDensity, ShouldEqual, model.CrowdLow)
				So(len(req.RecentEvents), ShouldEqual, 1)
				So(req.RecentEvents[0].Kind, ShouldEqual, model.KindScream)
				So(req.RecentEvents[0].Timestamp.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), ShouldBeTrue)
			})
		})
	})
}
