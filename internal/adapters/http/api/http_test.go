package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/okian/guardline/internal/adapters/http/api"
	"github.com/okian/guardline/internal/adapters/mq/worker"
	service "github.com/okian/guardline/internal/app"
	"github.com/okian/guardline/internal/domain/escalation"
	"github.com/okian/guardline/internal/domain/model"
	"github.com/okian/guardline/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// mockDependencies answers every operation with a canned result or err.
type mockDependencies struct {
	err    error
	events []types.EventRequest
	safe   []types.SafeRequest
}

func (m *mockDependencies) SubmitEvent(_ context.Context, _ string, req types.EventRequest) (types.EventResponse, error) {
	if m.err != nil {
		return types.EventResponse{}, m.err
	}
	m.events = append(m.events, req)
	return types.EventResponse{EventID: req.EventID, Score: 95, Level: model.LevelCritical, Armed: true}, nil
}

func (m *mockDependencies) SubmitLocation(_ context.Context, _ string, req types.LocationRequest) (types.LocationUpdated, error) {
	if m.err != nil {
		return types.LocationUpdated{}, m.err
	}
	return types.LocationUpdated{SubjectID: req.SubjectID, Location: model.Location{Lat: req.Lat, Lng: req.Lng}, Risk: 20}, nil
}

func (m *mockDependencies) ManualAlert(_ context.Context, _ string, req types.ManualAlertRequest) (escalation.Run, error) {
	if m.err != nil {
		return escalation.Run{}, m.err
	}
	return escalation.Run{ID: "run-1", SubjectID: req.SubjectID, State: escalation.StateArmed, Score: 100, Manual: true}, nil
}

func (m *mockDependencies) ConfirmSafe(_ context.Context, _ string, req types.SafeRequest) (types.Resolved, error) {
	if m.err != nil {
		return types.Resolved{}, m.err
	}
	m.safe = append(m.safe, req)
	return types.Resolved{SubjectID: req.SubjectID, Status: "safe", Cancelled: true}, nil
}

func (m *mockDependencies) ObserverRespond(_ context.Context, _ string, req types.RespondRequest) (types.GuardianResponse, error) {
	if m.err != nil {
		return types.GuardianResponse{}, m.err
	}
	return types.GuardianResponse{ObserverID: req.ObserverID, Action: req.Action}, nil
}

func (m *mockDependencies) Escalation(_ context.Context, subjectID string) service.EscalationStatus {
	return service.EscalationStatus{SubjectID: subjectID, State: escalation.StateIdle, Online: true}
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats(context.Context) map[string]interface{} {
	return m.stats
}

func newRouter(deps *mockDependencies, opts ...api.Option) http.Handler {
	stats := &mockStatsProvider{stats: map[string]interface{}{"started": true}}
	return api.NewServer(deps, stats, nil, opts...).Routes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorCode(w *httptest.ResponseRecorder) string {
	var out struct {
		Code string `json:"code"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out.Code
}

func TestServer_Routes(t *testing.T) {
	Convey("Given the API router", t, func() {
		deps := &mockDependencies{}
		h := newRouter(deps, api.WithWebSocket(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})))

		Convey("Then the health endpoint serves metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then the stats endpoint returns JSON", func() {
			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then the websocket handler is mounted", func() {
			w := do(h, http.MethodGet, "/ws", "")
			So(w.Code, ShouldEqual, http.StatusTeapot)
		})

		Convey("Then the API documentation is served", func() {
			So(do(h, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown routes are not found", func() {
			w := do(h, http.MethodGet, "/unknown", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(errorCode(w), ShouldEqual, "not_found")
		})

		Convey("Then the wrong method is rejected", func() {
			w := do(h, http.MethodGet, "/v1/events", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(errorCode(w), ShouldEqual, "method_not_allowed")
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given the API router", t, func() {
		deps := &mockDependencies{}
		h := newRouter(deps)

		Convey("When a valid event is posted", func() {
			w := do(h, http.MethodPost, "/v1/events",
				`{"subjectId":"s-1","eventId":"e-1","type":"scream","recentEvents":[{"type":"fall"}]}`)

			Convey("Then the assessment is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp types.EventResponse
				So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
				So(resp.Score, ShouldEqual, 95)
				So(resp.Armed, ShouldBeTrue)
				So(len(deps.events), ShouldEqual, 1)
				So(deps.events[0].RecentEvents[0].Kind, ShouldEqual, model.KindFall)
			})
		})

		Convey("When the subject is missing", func() {
			w := do(h, http.MethodPost, "/v1/events", `{"type":"scream"}`)

			Convey("Then the request is rejected before the service sees it", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(errorCode(w), ShouldEqual, "bad_request")
				So(w.Body.String(), ShouldContainSubstring, "subjectId is required")
				So(deps.events, ShouldBeEmpty)
			})
		})

		Convey("When the body is not JSON", func() {
			w := do(h, http.MethodPost, "/v1/events", `{not json`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the body is empty", func() {
			w := do(h, http.MethodPost, "/v1/events", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the severity is unknown", func() {
			w := do(h, http.MethodPost, "/v1/events", `{"subjectId":"s-1","type":"scream","severity":"extreme"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a location is posted", func() {
			w := do(h, http.MethodPost, "/v1/locations", `{"subjectId":"s-1","lat":28.7041,"lng":77.1025}`)

			Convey("Then the update is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"risk":20`)
			})
		})

		Convey("When a latitude is out of range", func() {
			w := do(h, http.MethodPost, "/v1/locations", `{"subjectId":"s-1","lat":128,"lng":77}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "lat must be a valid latitude")
		})
	})
}

func TestEventsHandler_Errors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("event for subject s-1: %w", worker.ErrQueueFull), http.StatusTooManyRequests, "backpressure"},
		{fmt.Errorf("event for subject s-1: %w", worker.ErrStopped), http.StatusServiceUnavailable, "unavailable"},
		{worker.ErrTaskPanic, http.StatusInternalServerError, "internal"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	Convey("Given a service that fails", t, func() {
		for _, tc := range cases {
			deps := &mockDependencies{err: tc.err}
			h := newRouter(deps)
			w := do(h, http.MethodPost, "/v1/events", `{"subjectId":"s-1","type":"scream"}`)

			So(w.Code, ShouldEqual, tc.status)
			So(errorCode(w), ShouldEqual, tc.code)
			So(w.Body.String(), ShouldNotContainSubstring, "boom")
		}
	})
}

func TestAlertsHandler(t *testing.T) {
	Convey("Given the API router", t, func() {
		deps := &mockDependencies{}
		h := newRouter(deps)

		Convey("When a manual alert is posted", func() {
			w := do(h, http.MethodPost, "/v1/alerts/manual", `{"subjectId":"s-1"}`)

			Convey("Then the run is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				var run escalation.Run
				So(json.Unmarshal(w.Body.Bytes(), &run), ShouldBeNil)
				So(run.Score, ShouldEqual, 100)
				So(run.Manual, ShouldBeTrue)
			})
		})

		Convey("When safety is confirmed", func() {
			w := do(h, http.MethodPost, "/v1/alerts/safe", `{"subjectId":"s-1"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"safe"`)
			So(len(deps.safe), ShouldEqual, 1)
		})

		Convey("When an observer responds without an action", func() {
			w := do(h, http.MethodPost, "/v1/observers/respond", `{"subjectId":"s-1","observerId":"o-1"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "action is required")
		})

		Convey("When an observer responds", func() {
			w := do(h, http.MethodPost, "/v1/observers/respond", `{"subjectId":"s-1","observerId":"o-1","action":"calling"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"action":"calling"`)
		})

		Convey("When the escalation status is requested", func() {
			w := do(h, http.MethodGet, "/v1/subjects/s-9/escalation", "")

			Convey("Then the subject's state is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var st service.EscalationStatus
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.SubjectID, ShouldEqual, "s-9")
				So(st.State, ShouldEqual, escalation.StateIdle)
			})
		})
	})
}

func TestKindError(t *testing.T) {
	Convey("Given a wrapped kind error", t, func() {
		cause := errors.New("subjectId is required")
		err := api.WrapKind("api.post_event", api.ErrBadRequest, cause)

		Convey("Then it matches both its kind and its cause", func() {
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(errors.Is(err, api.ErrBackpressure), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "api.post_event: bad request: subjectId is required")
		})

		Convey("Then a kind without cause formats op and kind", func() {
			So(api.NewKind("api.post_event", api.ErrBackpressure).Error(), ShouldEqual, "api.post_event: backpressure")
		})
	})
}
