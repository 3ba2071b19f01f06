package validation_test

import (
	"errors"
	"testing"

	"github.com/okian/guardline/internal/adapters/validation"
	"github.com/okian/guardline/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidator(t *testing.T) {
	v := validation.New()

	Convey("Given a well formed event request", t, func() {
		var req types.EventRequest
		err := v.Decode([]byte(`{"subjectId":"s1","type":"fall","severity":"critical"}`), &req)

		Convey("Then it decodes", func() {
			So(err, ShouldBeNil)
			So(req.SubjectID, ShouldEqual, "s1")
			So(string(req.Type), ShouldEqual, "fall")
		})
	})

	Convey("Given a request without a subject", t, func() {
		var req types.SafeRequest
		err := v.Decode([]byte(`{}`), &req)

		Convey("Then the json field name is reported", func() {
			So(errors.Is(err, validation.ErrInvalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "subjectId is required")
		})
	})

	Convey("Given an out of range position", t, func() {
		var req types.LocationRequest
		err := v.Decode([]byte(`{"subjectId":"s1","lat":123.4,"lng":500}`), &req)

		Convey("Then both coordinates are rejected", func() {
			So(errors.Is(err, validation.ErrInvalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "lat must be a valid latitude")
			So(err.Error(), ShouldContainSubstring, "lng must be a valid longitude")
		})
	})

	Convey("Given an unknown severity", t, func() {
		var req types.EventRequest
		err := v.Decode([]byte(`{"subjectId":"s1","type":"fall","severity":"extreme"}`), &req)

		Convey("Then oneof is enforced", func() {
			So(errors.Is(err, validation.ErrInvalid), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "severity must be one of")
		})
	})

	Convey("Given broken json or nothing at all", t, func() {
		var req types.SafeRequest

		Convey("Then a malformed error is returned", func() {
			So(errors.Is(v.Decode([]byte(`{"subjectId":`), &req), validation.ErrMalformed), ShouldBeTrue)
			So(errors.Is(v.Decode(nil, &req), validation.ErrMalformed), ShouldBeTrue)
		})
	})
}
