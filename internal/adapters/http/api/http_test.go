package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/trending/internal/adapters/http/api"
	"github.com/okian/trending/internal/adapters/mq/queue"
	service "github.com/okian/trending/internal/app"
	"github.com/okian/trending/internal/config"
	"github.com/okian/trending/internal/domain/model"
	"github.com/okian/trending/internal/domain/trending"
)

var _ api.Dependencies = (*service.Service)(nil)

// fakeDeps records submitted events and returns canned results.
type fakeDeps struct {
	submitted []model.Event
	result    service.SubmitResult
	submitErr error
	entries   []model.ItemScore
	readErr   error
	healthErr error
}

func (f *fakeDeps) Submit(_ context.Context, ev model.Event) (service.SubmitResult, error) {
	f.submitted = append(f.submitted, ev)
	if f.submitErr != nil {
		return service.SubmitResult{}, f.submitErr
	}
	if f.result.Status == "" {
		return service.SubmitResult{Status: service.StatusAccepted}, nil
	}
	return f.result, nil
}

func (f *fakeDeps) Trending(_ context.Context, count int) ([]model.ItemScore, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	if count <= 0 {
		return []model.ItemScore{}, nil
	}
	return f.entries[:min(count, len(f.entries))], nil
}

func (f *fakeDeps) Rank(_ context.Context, itemID string) (model.ItemScore, error) {
	if f.readErr != nil {
		return model.ItemScore{}, f.readErr
	}
	for _, e := range f.entries {
		if e.ItemID == itemID {
			return e, nil
		}
	}
	return model.ItemScore{}, fmt.Errorf("rank %q: %w", itemID, trending.ErrNotFound)
}

func (f *fakeDeps) Health(context.Context) error { return f.healthErr }

func (f *fakeDeps) GetStats() map[string]any { return map[string]any{"started": true} }

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func TestAddEvent(t *testing.T) {
	Convey("Given a server over fake dependencies", t, func() {
		deps := &fakeDeps{}
		srv := api.NewServer(context.Background(), deps, api.DefaultLimits)

		Convey("When a valid event is posted", func() {
			w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":1000,"weight":2.5}`)

			Convey("Then it is accepted with the documented body", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]any
				decode(w, &body)
				So(body["status"], ShouldEqual, "accepted")
				So(body["message"], ShouldEqual, "Event added successfully")
				So(deps.submitted, ShouldResemble, []model.Event{{ItemID: "A", EventTime: 1000, Weight: 2.5}})
			})
		})

		Convey("When numbers are sent as strings or fractions", func() {
			w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":"1000.9","weight":"0.5","event_id":"e1"}`)

			Convey("Then event_time is truncated and weight parsed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.submitted[0].EventTime, ShouldEqual, int64(1000))
				So(deps.submitted[0].Weight, ShouldEqual, 0.5)
				So(deps.submitted[0].EventID, ShouldEqual, "e1")
			})
		})

		Convey("When weight is omitted", func() {
			w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":0}`)

			Convey("Then the default weight applies and event_time 0 is allowed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.submitted[0].Weight, ShouldEqual, model.DefaultWeight)
				So(deps.submitted[0].EventTime, ShouldEqual, int64(0))
			})
		})

		Convey("When a timestamp exceeds float precision", func() {
			w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":9007199254740993}`)

			Convey("Then it is kept exactly", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.submitted[0].EventTime, ShouldEqual, int64(9007199254740993))
			})
		})

		Convey("When required fields are missing", func() {
			for _, body := range []string{
				`{"event_time":1}`,
				`{"item_id":"","event_time":1}`,
				`{"item_id":"A"}`,
				`{"item_id":"A","event_time":null}`,
			} {
				w := do(srv, http.MethodPost, "/add_event", body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)

				var resp map[string]string
				decode(w, &resp)
				So(resp["code"], ShouldEqual, "bad_request")
				So(resp["message"], ShouldEqual, "item_id and event_time are required")
			}

			Convey("Then nothing reaches the service", func() {
				So(deps.submitted, ShouldBeEmpty)
			})
		})

		Convey("When the body is malformed", func() {
			cases := []string{
				`not json`,
				`{"item_id":"A","event_time":"soon"}`,
				`{"item_id":"A","event_time":true}`,
				`{"item_id":"A","event_time":1,"weight":"heavy"}`,
				`{"item_id":7,"event_time":1}`,
			}
			for _, body := range cases {
				So(do(srv, http.MethodPost, "/add_event", body).Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("When the service reports errors", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{&trending.OpError{Op: "record", Field: "weight", Err: trending.ErrInvalidArgument}, http.StatusBadRequest, "invalid_argument"},
				{fmt.Errorf("enqueue event: %w", queue.ErrFull), http.StatusTooManyRequests, "backpressure"},
				{fmt.Errorf("upsert: %w", trending.ErrStoreUnavailable), http.StatusServiceUnavailable, "unavailable"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{service.ErrInFlight, http.StatusConflict, "in_flight"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}
			for _, tc := range cases {
				deps.submitErr = tc.err
				w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":1}`)
				So(w.Code, ShouldEqual, tc.status)

				var resp map[string]string
				decode(w, &resp)
				So(resp["code"], ShouldEqual, tc.code)
				if tc.status == http.StatusConflict {
					So(w.Header().Get("Retry-After"), ShouldEqual, "1")
				}
			}
		})

		Convey("When the service queues or deduplicates", func() {
			deps.result = service.SubmitResult{Status: service.StatusQueued}
			w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":1}`)
			So(w.Code, ShouldEqual, http.StatusAccepted)

			deps.result = service.SubmitResult{Status: service.StatusDuplicate}
			w = do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":1,"event_id":"x"}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			var body map[string]any
			decode(w, &body)
			So(body["duplicate"], ShouldEqual, true)
		})

		Convey("When the wrong method is used", func() {
			So(do(srv, http.MethodGet, "/add_event", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestTrending(t *testing.T) {
	Convey("Given a server with three ranked items", t, func() {
		deps := &fakeDeps{entries: []model.ItemScore{
			{Rank: 1, ItemID: "A", Score: 1.0},
			{Rank: 2, ItemID: "B", Score: 0.45241870901797976},
			{Rank: 3, ItemID: "C", Score: 0.1},
		}}
		srv := api.NewServer(context.Background(), deps, api.Limits{DefaultCount: 2, MaxCount: 5, ScorePrecision: 6})

		Convey("When count is omitted", func() {
			w := do(srv, http.MethodGet, "/trending", "")

			Convey("Then the default count applies and scores are rounded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var items []map[string]any
				decode(w, &items)
				So(items, ShouldHaveLength, 2)
				So(items[0]["item_id"], ShouldEqual, "A")
				So(items[1]["score"], ShouldEqual, 0.452419)
			})
		})

		Convey("When count is explicit", func() {
			var items []map[string]any
			decode(do(srv, http.MethodGet, "/trending?count=3", ""), &items)
			So(items, ShouldHaveLength, 3)

			Convey("And zero or negative", func() {
				for _, q := range []string{"0", "-4"} {
					w := do(srv, http.MethodGet, "/trending?count="+q, "")
					So(w.Code, ShouldEqual, http.StatusOK)
					So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
				}
			})
		})

		Convey("When count is invalid or too large", func() {
			So(do(srv, http.MethodGet, "/trending?count=ten", "").Code, ShouldEqual, http.StatusBadRequest)

			w := do(srv, http.MethodGet, "/trending?count=6", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			var resp map[string]string
			decode(w, &resp)
			So(resp["code"], ShouldEqual, "limit_exceeded")
		})

		Convey("When the store is down", func() {
			deps.readErr = fmt.Errorf("top: %w", trending.ErrStoreUnavailable)
			So(do(srv, http.MethodGet, "/trending", "").Code, ShouldEqual, http.StatusServiceUnavailable)
			So(do(srv, http.MethodGet, "/trending/A", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When one item is ranked", func() {
			w := do(srv, http.MethodGet, "/trending/B", "")
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp map[string]any
			decode(w, &resp)
			So(resp["rank"], ShouldEqual, float64(2))
			So(resp["item_id"], ShouldEqual, "B")

			Convey("And an unknown item is 404", func() {
				So(do(srv, http.MethodGet, "/trending/Z", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When item ids need path escaping", func() {
			deps.entries = append(deps.entries,
				model.ItemScore{Rank: 4, ItemID: "news/123", Score: 0.05},
				model.ItemScore{Rank: 5, ItemID: "50%off", Score: 0.04},
				model.ItemScore{Rank: 6, ItemID: " ", Score: 0.03},
			)

			Convey("Then the escaped segment is decoded before lookup", func() {
				for _, id := range []string{"news/123", "50%off", " "} {
					w := do(srv, http.MethodGet, "/trending/"+url.PathEscape(id), "")
					So(w.Code, ShouldEqual, http.StatusOK)

					var resp map[string]any
					decode(w, &resp)
					So(resp["item_id"], ShouldEqual, id)
				}
			})
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a server", t, func() {
		deps := &fakeDeps{}
		srv := api.NewServer(context.Background(), deps, api.DefaultLimits)

		Convey("Then /healthz follows the store", func() {
			So(do(srv, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			deps.healthErr = errors.New("connection refused")
			So(do(srv, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Then /stats returns the provider's map", func() {
			var stats map[string]any
			decode(do(srv, http.MethodGet, "/stats", ""), &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("Then /metrics exposes HTTP metrics after a request", func() {
			do(srv, http.MethodGet, "/healthz", "")
			w := do(srv, http.MethodGet, "/metrics", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("Then docs are served", func() {
			So(do(srv, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(do(srv, http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then every response carries a request id", func() {
			w := do(srv, http.MethodGet, "/healthz", "")
			So(w.Header().Get(api.RequestIDHeader), ShouldNotBeEmpty)

			req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
			req.Header.Set(api.RequestIDHeader, "abc")
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			So(rec.Header().Get(api.RequestIDHeader), ShouldEqual, "abc")
		})

		Convey("Then unknown paths get a JSON 404", func() {
			w := do(srv, http.MethodGet, "/nope", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
		})
	})
}

func TestEndToEnd(t *testing.T) {
	Convey("Given a server over a real service", t, func() {
		now := int64(1000)
		clock := func() time.Time { return time.Unix(now, 0) }
		svc := service.New(config.New(), service.WithClock(clock))
		So(svc.Start(context.Background()), ShouldBeNil)
		Reset(func() { svc.Stop(context.Background()) })

		srv := api.NewServer(context.Background(), svc, api.DefaultLimits)

		Convey("When A and B are posted at different times", func() {
			So(do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":1000,"weight":1.0}`).Code, ShouldEqual, http.StatusOK)
			now = 2000
			So(do(srv, http.MethodPost, "/add_event", `{"item_id":"B","event_time":1000,"weight":0.5}`).Code, ShouldEqual, http.StatusOK)

			Convey("Then /trending?count=2 lists them in order", func() {
				var items []map[string]any
				decode(do(srv, http.MethodGet, "/trending?count=2", ""), &items)
				So(items, ShouldHaveLength, 2)
				So(items[0]["item_id"], ShouldEqual, "A")
				So(items[0]["score"], ShouldEqual, 1.0)
				So(items[1]["item_id"], ShouldEqual, "B")
				So(items[1]["score"], ShouldEqual, math.Round(0.5*math.Exp(-0.1)*1e6)/1e6)
			})
		})

		Convey("When a non-positive weight is posted", func() {
			w := do(srv, http.MethodPost, "/add_event", `{"item_id":"A","event_time":1000,"weight":0}`)

			Convey("Then it is a 400 invalid_argument", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var resp map[string]string
				decode(w, &resp)
				So(resp["code"], ShouldEqual, "invalid_argument")
			})
		})
	})
}
