package repository_test

import (
	"context"
	"fmt"
	"testing"

	repository "github.com/okian/guardline/internal/adapters/repository"
	model "github.com/okian/guardline/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func ids(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestWindowStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a window store bounded to three events", t, func() {
		s := repository.NewWindowStore(repository.WithWindowSize(3))

		Convey("When five events are appended for one subject", func() {
			var last []model.Event
			for i := 1; i <= 5; i++ {
				w, err := s.Append(ctx, "s1", model.Event{ID: fmt.Sprintf("e%d", i), Kind: model.KindFall})
				So(err, ShouldBeNil)
				last = w
			}

			Convey("Then only the newest three remain in order", func() {
				So(ids(last), ShouldResemble, []string{"e3", "e4", "e5"})
				So(ids(s.Window(ctx, "s1")), ShouldResemble, []string{"e3", "e4", "e5"})
				So(s.Window(ctx, "s2"), ShouldBeEmpty)
				So(s.Count(), ShouldEqual, 1)
			})

			Convey("Then returned windows are copies", func() {
				last[0].ID = "mutated"
				So(s.Window(ctx, "s1")[0].ID, ShouldEqual, "e3")
			})

			Convey("Then forgetting drops the subject", func() {
				s.Forget(ctx, "s1")
				So(s.Window(ctx, "s1"), ShouldBeEmpty)
				So(s.Count(), ShouldEqual, 0)
			})
		})

		Convey("When a window is replaced with more events than fit", func() {
			err := s.Replace(ctx, "s1", []model.Event{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}})

			Convey("Then the tail is kept", func() {
				So(err, ShouldBeNil)
				So(ids(s.Window(ctx, "s1")), ShouldResemble, []string{"b", "c", "d"})
			})
		})

		Convey("When the subject id is empty", func() {
			_, err := s.Append(ctx, "", model.Event{ID: "x"})

			Convey("Then the append is rejected", func() {
				So(err, ShouldEqual, repository.ErrInvalidSubject)
				So(s.Replace(ctx, "", nil), ShouldEqual, repository.ErrInvalidSubject)
			})
		})
	})

	Convey("Truncate keeps the last n events and leaves short input alone", t, func() {
		in := []model.Event{{ID: "a"}, {ID: "b"}}
		So(ids(repository.Truncate(in, 5)), ShouldResemble, []string{"a", "b"})
		So(ids(repository.Truncate(in, 1)), ShouldResemble, []string{"b"})
		So(ids(repository.Truncate(in, 0)), ShouldResemble, []string{"a", "b"})
	})
}
