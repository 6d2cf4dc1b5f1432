package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/app"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/ranking"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// flakySource fails statistics reads with a transport error when failing is set.
type flakySource struct {
	*repository.MemorySource
	failing bool
	gate    chan struct{}
}

var errConnReset = errors.New("connection reset by peer")

func (f *flakySource) GetStatistics(ctx context.Context, id string) (model.Statistics, error) {
	if f.failing {
		return model.Statistics{}, errConnReset
	}
	return f.MemorySource.GetStatistics(ctx, id)
}

func (f *flakySource) AllStatistics(ctx context.Context) ([]model.Statistics, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.failing {
		return nil, errConnReset
	}
	return f.MemorySource.AllStatistics(ctx)
}

func newComputer() *ranking.Computer {
	n := 0
	return ranking.New(
		ranking.WithClock(func() time.Time { return fixedNow }),
		ranking.WithIDGenerator(func() string { n++; return fmt.Sprintf("rk-%d", n) }),
	)
}

// seed loads alice (48.7, P3), bob (24.2, P3) and carol (66.45, P2).
func seed(src *repository.MemorySource) {
	src.PutPlayer(model.PlayerRef{ID: "alice", Name: "Alice", Category: model.P3})
	src.PutPlayer(model.PlayerRef{ID: "bob", Name: "Bob", Category: model.P3})
	src.PutPlayer(model.PlayerRef{ID: "carol", Name: "Carol", Category: model.P2})
	src.PutStatistics(model.Statistics{PlayerID: "alice", WinRate: 70, AverageScore: 12, TournamentsWon: 1, MatchesWon: 7})
	src.PutStatistics(model.Statistics{PlayerID: "bob", WinRate: 50, AverageScore: 10, MatchesWon: 4})
	src.PutStatistics(model.Statistics{PlayerID: "carol", WinRate: 75, AverageScore: 12.5, TournamentsWon: 2, MatchesWon: 9})
}

type fixture struct {
	src   *flakySource
	store *repository.MemoryStore
	svc   *app.Service
}

func newFixture(opts ...app.Option) fixture {
	src := &flakySource{MemorySource: repository.NewMemorySource()}
	seed(src.MemorySource)
	store := repository.NewMemoryStore()
	opts = append([]app.Option{app.WithComputer(newComputer())}, opts...)
	return fixture{src: src, store: store, svc: app.New(store, src, src, opts...)}
}

func TestService_ComputeAll(t *testing.T) {
	Convey("Given three ranked players", t, func() {
		ctx := context.Background()
		f := newFixture()

		summary, err := f.svc.ComputeAll(ctx)
		So(err, ShouldBeNil)
		So(summary.Computed, ShouldEqual, 3)
		So(summary.CalculatedAt.Equal(fixedNow), ShouldBeTrue)

		Convey("Then global and category positions are dense", func() {
			carol, _ := f.store.Get(ctx, "carol")
			alice, _ := f.store.Get(ctx, "alice")
			bob, _ := f.store.Get(ctx, "bob")

			So(carol.Score, ShouldAlmostEqual, 66.45, 1e-9)
			So(carol.GlobalPosition, ShouldEqual, 1)
			So(carol.CategoryPosition, ShouldEqual, 1)
			So(alice.GlobalPosition, ShouldEqual, 2)
			So(alice.CategoryPosition, ShouldEqual, 1)
			So(bob.GlobalPosition, ShouldEqual, 3)
			So(bob.CategoryPosition, ShouldEqual, 2)
			So(bob.PreviousGlobalPosition, ShouldBeNil)
			So(bob.PositionChange, ShouldEqual, 0)
		})

		Convey("When bob overtakes everyone and rankings are recomputed", func() {
			before, _ := f.store.Get(ctx, "carol")
			f.src.PutStatistics(model.Statistics{PlayerID: "bob", WinRate: 100, AverageScore: 40, TournamentsWon: 3, MatchesWon: 20})
			_, err := f.svc.ComputeAll(ctx)
			So(err, ShouldBeNil)

			Convey("Then deltas are previous minus new and ids are kept", func() {
				bob, _ := f.store.Get(ctx, "bob")
				So(bob.GlobalPosition, ShouldEqual, 1)
				So(*bob.PreviousGlobalPosition, ShouldEqual, 3)
				So(bob.PositionChange, ShouldEqual, 2)

				carol, _ := f.store.Get(ctx, "carol")
				So(carol.GlobalPosition, ShouldEqual, 2)
				So(carol.PositionChange, ShouldEqual, -1)
				So(carol.ID, ShouldEqual, before.ID)
				So(carol.CreatedAt.Equal(before.CreatedAt), ShouldBeTrue)
			})
		})

		Convey("When statistics exist for a player missing from the catalog", func() {
			f.src.PutStatistics(model.Statistics{PlayerID: "ghost", WinRate: 100})
			summary, err := f.svc.ComputeAll(ctx)

			Convey("Then the row is skipped and the rest is ranked", func() {
				So(err, ShouldBeNil)
				So(summary.Computed, ShouldEqual, 3)
				So(summary.Skipped, ShouldContain, ranking.Skipped{PlayerID: "ghost", Reason: ranking.ReasonOrphanStatistics})
				_, err := f.store.Get(ctx, "ghost")
				So(errs.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When a ranked player leaves the catalog and rankings are recomputed", func() {
			f.src.RemovePlayer("carol")
			summary, err := f.svc.ComputeAll(ctx)
			So(err, ShouldBeNil)

			Convey("Then the views stay dense without the stale row", func() {
				So(summary.Computed, ShouldEqual, 2)
				So(summary.Stale, ShouldEqual, 1)

				res, err := f.svc.List(ctx, app.ListRequest{Limit: 10})
				So(err, ShouldBeNil)
				So(rowIDs(res.Rankings), ShouldResemble, []string{"alice", "bob"})
				So(res.Rankings[0].GlobalPosition, ShouldEqual, 1)
				So(res.Rankings[1].GlobalPosition, ShouldEqual, 2)
				So(res.Pagination.Total, ShouldEqual, 2)

				byScore, err := f.svc.List(ctx, app.ListRequest{Sort: "score", Order: "desc", Limit: 10})
				So(err, ShouldBeNil)
				So(rowIDs(byScore.Rankings), ShouldResemble, []string{"alice", "bob"})

				p2, err := f.svc.List(ctx, app.ListRequest{Category: "P2", Limit: 10})
				So(err, ShouldBeNil)
				So(p2.Rankings, ShouldBeEmpty)
				So(p2.Pagination.Total, ShouldEqual, 0)
			})

			Convey("Then the stored row is kept and readable as stale", func() {
				r, err := f.svc.Rank(ctx, "carol")
				So(err, ShouldBeNil)
				So(r.Stale, ShouldBeTrue)
				So(r.GlobalPosition, ShouldEqual, 1)
				So(r.PlayerMissing, ShouldBeTrue)
			})

			Convey("Then a further recomputation does not flag it again", func() {
				again, err := f.svc.ComputeAll(ctx)
				So(err, ShouldBeNil)
				So(again.Stale, ShouldEqual, 0)
				So(again.Computed, ShouldEqual, 2)
			})

			Convey("When the player is back in the catalog", func() {
				f.src.PutPlayer(model.PlayerRef{ID: "carol", Name: "Carol", Category: model.P2})
				_, err := f.svc.ComputeAll(ctx)
				So(err, ShouldBeNil)

				Convey("Then the row is ranked again", func() {
					r, err := f.svc.Rank(ctx, "carol")
					So(err, ShouldBeNil)
					So(r.Stale, ShouldBeFalse)
					So(r.GlobalPosition, ShouldEqual, 1)
					res, _ := f.svc.List(ctx, app.ListRequest{Limit: 10})
					So(rowIDs(res.Rankings), ShouldResemble, []string{"carol", "alice", "bob"})
				})
			})
		})

		Convey("When bulk statistics cannot be read under the fail policy", func() {
			f.src.failing = true
			_, err := f.svc.ComputeAll(ctx)

			Convey("Then the error is unexpected and stored rankings are untouched", func() {
				So(errors.Is(err, errs.ErrUnexpected), ShouldBeTrue)
				n, _ := f.store.Count(ctx, model.Filter{})
				So(n, ShouldEqual, 3)
			})
		})
	})
}

func TestService_ComputeAll_Abandoned(t *testing.T) {
	Convey("Given a full recomputation blocked on its statistics read", t, func() {
		f := newFixture()
		f.src.gate = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			_, err := f.svc.ComputeAll(ctx)
			done <- err
		}()

		Convey("When the caller stops waiting", func() {
			cancel()
			err := <-done

			Convey("Then the caller gets an unexpected error", func() {
				So(errors.Is(err, errs.ErrUnexpected), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				close(f.src.gate)
			})

			Convey("And the computation still completes and is stored as a whole", func() {
				close(f.src.gate)
				stored := func() int {
					n, _ := f.store.Count(context.Background(), model.Filter{})
					return n
				}
				deadline := time.Now().Add(2 * time.Second)
				for stored() != 3 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
				So(stored(), ShouldEqual, 3)
			})
		})
	})
}

func TestService_ComputeOne(t *testing.T) {
	Convey("Given seeded statistics and an empty store", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("When computing one player", func() {
			r, err := f.svc.ComputeOne(ctx, "alice")

			Convey("Then it is ranked against every player", func() {
				So(err, ShouldBeNil)
				So(r.Score, ShouldAlmostEqual, 48.7, 1e-9)
				So(r.GlobalPosition, ShouldEqual, 2)
				So(r.CategoryPosition, ShouldEqual, 1)
				So(r.Category, ShouldEqual, model.P3)
				So(r.PreviousGlobalPosition, ShouldBeNil)

				stored, err := f.store.Get(ctx, "alice")
				So(err, ShouldBeNil)
				So(stored.ID, ShouldEqual, r.ID)
			})

			Convey("And recomputing it again reports no movement", func() {
				again, err := f.svc.ComputeOne(ctx, "alice")
				So(err, ShouldBeNil)
				So(again.ID, ShouldEqual, r.ID)
				So(*again.PreviousGlobalPosition, ShouldEqual, 2)
				So(again.PositionChange, ShouldEqual, 0)
			})
		})

		Convey("When the player has no statistics", func() {
			f.src.PutPlayer(model.PlayerRef{ID: "erin", Category: model.P1})
			_, err := f.svc.ComputeOne(ctx, "erin")

			Convey("Then it fails with not found and writes nothing", func() {
				So(errs.IsNotFound(err), ShouldBeTrue)
				_, err := f.store.Get(ctx, "erin")
				So(errs.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When the player is not in the catalog", func() {
			f.src.PutStatistics(model.Statistics{PlayerID: "ghost", WinRate: 90})
			_, err := f.svc.ComputeOne(ctx, "ghost")

			Convey("Then it fails with not found", func() {
				So(errs.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When the player id is empty", func() {
			_, err := f.svc.ComputeOne(ctx, "")

			Convey("Then it is an invalid argument", func() {
				So(errs.IsInvalid(err), ShouldBeTrue)
			})
		})

		Convey("When statistics cannot be read under the fail policy", func() {
			f.src.failing = true
			_, err := f.svc.ComputeOne(ctx, "alice")

			Convey("Then the error is unexpected and nothing is written", func() {
				So(errors.Is(err, errs.ErrUnexpected), ShouldBeTrue)
				So(errors.Is(err, errConnReset), ShouldBeTrue)
				_, err := f.store.Get(ctx, "alice")
				So(errs.IsNotFound(err), ShouldBeTrue)
			})
		})
	})

	Convey("Given the zero statistics policy", t, func() {
		ctx := context.Background()
		f := newFixture(app.WithStatisticsPolicy(app.PolicyZero))
		f.src.failing = true

		Convey("When statistics cannot be read", func() {
			r, err := f.svc.ComputeOne(ctx, "alice")

			Convey("Then the player is ranked with zeroed statistics", func() {
				So(err, ShouldBeNil)
				So(r.Score, ShouldEqual, 0)
				So(r.GlobalPosition, ShouldEqual, 1)

				stored, err := f.store.Get(ctx, "alice")
				So(err, ShouldBeNil)
				So(stored.Score, ShouldEqual, 0)
			})
		})
	})
}

func TestService_Recompute(t *testing.T) {
	Convey("Given the players recompute mode", t, func() {
		ctx := context.Background()
		f := newFixture(app.WithRecomputeMode(app.RecomputePlayers))

		Convey("When a match names a participant without statistics", func() {
			err := f.svc.Recompute(ctx, model.MatchCompleted{MatchID: "m1", PlayerIDs: []string{"alice", "nobody"}})

			Convey("Then known participants are ranked and the rest is skipped", func() {
				So(err, ShouldBeNil)
				_, err := f.store.Get(ctx, "alice")
				So(err, ShouldBeNil)
				_, err = f.store.Get(ctx, "bob")
				So(errs.IsNotFound(err), ShouldBeTrue)
			})
		})
	})

	Convey("Given the all recompute mode", t, func() {
		ctx := context.Background()
		f := newFixture()

		Convey("When a match completes", func() {
			err := f.svc.Recompute(ctx, model.MatchCompleted{MatchID: "m1", PlayerIDs: []string{"alice"}})

			Convey("Then every player is ranked", func() {
				So(err, ShouldBeNil)
				n, _ := f.store.Count(ctx, model.Filter{})
				So(n, ShouldEqual, 3)
			})
		})
	})
}

func TestService_GetStats(t *testing.T) {
	Convey("Given a service that computed rankings", t, func() {
		ctx := context.Background()
		f := newFixture(app.WithWorkerCount(2))
		_, err := f.svc.ComputeAll(ctx)
		So(err, ShouldBeNil)

		stats := f.svc.GetStats(ctx)

		Convey("Then the stats describe the engine", func() {
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["totalRankings"], ShouldEqual, 3)
			So(stats["recomputeMode"], ShouldEqual, app.RecomputeAll)
			So(stats["statisticsPolicy"], ShouldEqual, app.PolicyFail)
			So(stats, ShouldContainKey, "lastComputeAll")
		})
	})
}
