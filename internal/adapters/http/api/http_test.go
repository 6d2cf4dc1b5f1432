package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/rankings/internal/adapters/http/api"
	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/app"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func newService() (*app.Service, *repository.MemorySource) {
	src := repository.NewMemorySource()
	src.PutPlayer(model.PlayerRef{ID: "alice", Name: "Alice", Category: model.P3})
	src.PutPlayer(model.PlayerRef{ID: "bob", Name: "Bob", Category: model.P3})
	src.PutPlayer(model.PlayerRef{ID: "carol", Name: "Carol", Category: model.P2})
	src.PutStatistics(model.Statistics{PlayerID: "alice", WinRate: 70, AverageScore: 12, TournamentsWon: 1, MatchesWon: 7})
	src.PutStatistics(model.Statistics{PlayerID: "bob", WinRate: 50, AverageScore: 10, MatchesWon: 4})
	src.PutStatistics(model.Statistics{PlayerID: "carol", WinRate: 75, AverageScore: 12.5, TournamentsWon: 2, MatchesWon: 9})
	return app.New(repository.NewMemoryStore(), src, src, app.WithWorkerCount(1)), src
}

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, nil).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

type listBody struct {
	Rankings []struct {
		PlayerID       string `json:"player_id"`
		GlobalPosition int    `json:"global_position"`
		PlayerMissing  bool   `json:"player_missing"`
		Player         *struct {
			Name string `json:"name"`
		} `json:"player"`
	} `json:"rankings"`
	Pagination app.Pagination `json:"pagination"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestRankingsRoutes(t *testing.T) {
	Convey("Given the API over a service with computed rankings", t, func() {
		svc, src := newService()
		_, err := svc.ComputeAll(context.Background())
		So(err, ShouldBeNil)
		mux := newMux(svc)

		Convey("When listing without parameters", func() {
			w := do(mux, http.MethodGet, "/rankings", "")

			Convey("Then the first page uses the default limit", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				var body listBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body.Rankings), ShouldEqual, 3)
				So(body.Rankings[0].PlayerID, ShouldEqual, "carol")
				So(body.Rankings[0].Player.Name, ShouldEqual, "Carol")
				So(body.Pagination.Limit, ShouldEqual, svc.DefaultLimit())
				So(body.Pagination.Total, ShouldEqual, 3)
				So(body.Pagination.HasMore, ShouldBeFalse)
			})
		})

		Convey("When listing a category page", func() {
			w := do(mux, http.MethodGet, "/rankings?category=P3&limit=1&offset=1", "")

			Convey("Then it pages inside the category", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body listBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body.Rankings), ShouldEqual, 1)
				So(body.Rankings[0].PlayerID, ShouldEqual, "bob")
				So(body.Pagination.Total, ShouldEqual, 2)
				So(body.Pagination.HasMore, ShouldBeFalse)
			})
		})

		Convey("When a ranked player is missing from the catalog", func() {
			src.RemovePlayer("alice")
			w := do(mux, http.MethodGet, "/rankings", "")

			Convey("Then the row is still listed and flagged", func() {
				var body listBody
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(len(body.Rankings), ShouldEqual, 3)
				So(body.Rankings[1].PlayerID, ShouldEqual, "alice")
				So(body.Rankings[1].PlayerMissing, ShouldBeTrue)
				So(body.Rankings[1].Player, ShouldBeNil)
			})
		})

		Convey("When the query is malformed", func() {
			targets := []string{
				"/rankings?limit=0",
				"/rankings?limit=abc",
				"/rankings?offset=-1",
				"/rankings?limit=1000",
				"/rankings?category=P7",
				"/rankings?sort=name",
				"/rankings?order=up",
			}

			Convey("Then every one is a bad request", func() {
				for _, target := range targets {
					w := do(mux, http.MethodGet, target, "")
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					var body errorBody
					So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
					So(body.Code, ShouldEqual, "invalid_argument")
				}
			})
		})

		Convey("When reading one ranking", func() {
			w := do(mux, http.MethodGet, "/rankings/alice", "")

			Convey("Then it is returned with its player", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"player_id":"alice"`)
				So(w.Body.String(), ShouldContainSubstring, `"name":"Alice"`)
				So(w.Body.String(), ShouldContainSubstring, `"category":"P3"`)
			})
		})

		Convey("When reading an unknown ranking", func() {
			w := do(mux, http.MethodGet, "/rankings/nobody", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(w.Body.String(), ShouldContainSubstring, `"code":"not_found"`)
			})
		})

		Convey("When deleting a ranking", func() {
			w := do(mux, http.MethodDelete, "/rankings/bob", "")

			Convey("Then it is removed", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(do(mux, http.MethodGet, "/rankings/bob", "").Code, ShouldEqual, http.StatusNotFound)
				So(do(mux, http.MethodDelete, "/rankings/bob", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When recomputing one player", func() {
			w := do(mux, http.MethodPost, "/rankings/alice/recompute", "")

			Convey("Then the fresh ranking is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"global_position":2`)
				So(w.Body.String(), ShouldContainSubstring, `"previous_global_position":2`)
			})
		})

		Convey("When recomputing a player without statistics", func() {
			src.PutPlayer(model.PlayerRef{ID: "erin", Category: model.P1})
			w := do(mux, http.MethodPost, "/rankings/erin/recompute", "")

			Convey("Then it is not found", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When recomputing everything", func() {
			w := do(mux, http.MethodPost, "/rankings/recompute", "")

			Convey("Then the summary is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"computed":3`)
			})
		})

		Convey("When using an unsupported method", func() {
			w := do(mux, http.MethodPut, "/rankings", "")

			Convey("Then the router rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When requesting stats and metrics", func() {
			stats := do(mux, http.MethodGet, "/stats", "")
			health := do(mux, http.MethodGet, "/healthz", "")

			Convey("Then both respond", func() {
				So(stats.Code, ShouldEqual, http.StatusOK)
				So(stats.Body.String(), ShouldContainSubstring, `"totalRankings":3`)
				So(health.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestMatchesRoute(t *testing.T) {
	Convey("Given a started service behind the API", t, func() {
		ctx := context.Background()
		svc, _ := newService()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()
		mux := newMux(svc)

		Convey("When a match is posted", func() {
			w := do(mux, http.MethodPost, "/matches/completed",
				`{"match_id":"m-1","player_ids":["alice","bob"],"completed_at":"2024-06-01T10:00:00Z"}`)

			Convey("Then it is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Body.String(), ShouldContainSubstring, `"status":"accepted"`)
			})

			Convey("And posting it again is a duplicate", func() {
				w := do(mux, http.MethodPost, "/matches/completed", `{"match_id":"m-1"}`)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"duplicate":true`)
			})
		})

		Convey("When the body is malformed", func() {
			cases := []string{
				`{"match_id":`,
				`{"player_ids":["alice"]}`,
				`{"match_id":"m-2","completed_at":"yesterday"}`,
				`{"match_id":"m-3","player_ids":[""]}`,
			}

			Convey("Then every one is a bad request", func() {
				for _, body := range cases {
					So(do(mux, http.MethodPost, "/matches/completed", body).Code, ShouldEqual, http.StatusBadRequest)
				}
			})
		})
	})
}

// failingService returns err from every operation.
type failingService struct {
	err error
}

func (f failingService) List(context.Context, app.ListRequest) (app.ListResult, error) {
	return app.ListResult{}, f.err
}

func (f failingService) ComputeAll(context.Context) (app.ComputeSummary, error) {
	return app.ComputeSummary{}, f.err
}

func (failingService) DefaultLimit() int { return 20 }

func (f failingService) Rank(context.Context, string) (model.RankingWithPlayer, error) {
	return model.RankingWithPlayer{}, f.err
}

func (f failingService) Delete(context.Context, string) error { return f.err }

func (f failingService) ComputeOne(context.Context, string) (model.Ranking, error) {
	return model.Ranking{}, f.err
}

func (f failingService) MatchCompleted(context.Context, model.MatchCompleted) (bool, error) {
	return false, f.err
}

func (failingService) GetStats(context.Context) map[string]any { return map[string]any{} }

func TestErrorMapping(t *testing.T) {
	Convey("Given a service whose store is down", t, func() {
		mux := newMux(failingService{err: errs.WrapKind("store.List", errs.ErrUnexpected, errors.New("dial tcp: refused"))})

		Convey("Then reads fail with an opaque internal error", func() {
			w := do(mux, http.MethodGet, "/rankings", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			var body errorBody
			So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
			So(body.Code, ShouldEqual, "internal_error")
			So(body.Message, ShouldNotContainSubstring, "dial tcp")
		})

		Convey("And recomputation fails the same way", func() {
			So(do(mux, http.MethodPost, "/rankings/recompute", "").Code, ShouldEqual, http.StatusInternalServerError)
			So(do(mux, http.MethodPost, "/rankings/alice/recompute", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})

	Convey("Given a full match queue", t, func() {
		mux := newMux(failingService{err: errs.WrapKind("app.MatchCompleted", errs.ErrUnexpected, app.ErrBackpressure)})

		Convey("Then matches are pushed back", func() {
			w := do(mux, http.MethodPost, "/matches/completed", `{"match_id":"m-1"}`)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
			So(w.Body.String(), ShouldContainSubstring, `"code":"backpressure"`)
		})
	})

	Convey("Given a service that is shutting down", t, func() {
		mux := newMux(failingService{err: errs.WrapKind("app.MatchCompleted", errs.ErrUnexpected, app.ErrNotStarted)})

		Convey("Then matches are refused as unavailable", func() {
			w := do(mux, http.MethodPost, "/matches/completed", `{"match_id":"m-1"}`)
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})

	Convey("Given a nil mux", t, func() {
		Convey("Then registering panics", func() {
			So(func() { api.NewServer(failingService{}, nil).Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
