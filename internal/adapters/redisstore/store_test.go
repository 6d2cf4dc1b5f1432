package redisstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKeys(t *testing.T) {
	Convey("Given the default key layout", t, func() {
		k := keys{prefix: "rankings"}
		p2 := model.P2

		Convey("Then keys are namespaced by prefix and category", func() {
			So(k.row("p1"), ShouldEqual, "rankings:ranking:p1")
			So(k.rows(), ShouldEqual, "rankings:rows")
			So(k.byScore(nil), ShouldEqual, "rankings:idx:score")
			So(k.byScore(&p2), ShouldEqual, "rankings:idx:score:P2")
			So(k.byCategoryPosition(model.P3), ShouldEqual, "rankings:idx:catpos:P3")
			So(k.scope(model.Filter{Category: &p2}), ShouldEqual, "rankings:idx:score:P2")
		})

		Convey("Then each supported view maps to one index", func() {
			key, rev, ok := k.index(model.Query{Sort: model.SortScore, Desc: true})
			So(ok, ShouldBeTrue)
			So(key, ShouldEqual, "rankings:idx:score")
			So(rev, ShouldBeFalse)

			_, rev, _ = k.index(model.Query{Sort: model.SortScore})
			So(rev, ShouldBeTrue)

			key, rev, ok = k.index(model.Query{Filter: model.Filter{Category: &p2}, Sort: model.SortCategoryPosition, Desc: true})
			So(ok, ShouldBeTrue)
			So(key, ShouldEqual, "rankings:idx:catpos:P2")
			So(rev, ShouldBeTrue)

			_, _, ok = k.index(model.Query{Filter: model.Filter{Category: &p2}, Sort: model.SortGlobalPosition})
			So(ok, ShouldBeFalse)
		})

		Convey("Then higher scores sort first in the negated index", func() {
			So(indexScore(66.45), ShouldBeLessThan, indexScore(48.7))
			So(indexScore(24.2), ShouldEqual, indexScore(24.2000000000001))
		})
	})
}

func ids(rs []model.Ranking) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.PlayerID
	}
	return out
}

func TestStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	Convey("Given a redis store under a fresh prefix", t, func() {
		ctx := context.Background()
		mr.FlushAll()
		s, err := Open(ctx, mr.Addr(), "", 0, WithKeyPrefix("rankings-test-"+uuid.NewString()))
		So(err, ShouldBeNil)
		defer func() { _ = s.Close() }()

		rows := []model.Ranking{
			{ID: "1", PlayerID: "carol", Score: 66.45, GlobalPosition: 1, CategoryPosition: 1, Category: model.P2},
			{ID: "2", PlayerID: "alice", Score: 48.7, GlobalPosition: 2, CategoryPosition: 1, Category: model.P3},
			{ID: "3", PlayerID: "bob", Score: 24.2, GlobalPosition: 3, CategoryPosition: 2, Category: model.P3},
			{ID: "4", PlayerID: "dan", Score: 24.2, GlobalPosition: 4, CategoryPosition: 3, Category: model.P3},
		}
		So(s.UpsertAll(ctx, rows), ShouldBeNil)
		p2, p3 := model.P2, model.P3

		Convey("Then a stored row reads back unchanged", func() {
			r, err := s.Get(ctx, "alice")
			So(err, ShouldBeNil)
			So(r.ID, ShouldEqual, "2")
			So(r.Score, ShouldEqual, 48.7)
			So(r.Category, ShouldEqual, model.P3)
			So(r.CategoryPosition, ShouldEqual, 1)

			_, err = s.Get(ctx, "nobody")
			So(errs.IsNotFound(err), ShouldBeTrue)
		})

		Convey("Then pages follow the indexes", func() {
			got, err := s.List(ctx, model.Query{Sort: model.SortScore, Desc: true, Limit: 3})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"carol", "alice", "bob"})

			got, err = s.List(ctx, model.Query{Filter: model.Filter{Category: &p3}, Sort: model.SortCategoryPosition, Offset: 1})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"bob", "dan"})

			got, err = s.List(ctx, model.Query{Sort: model.SortGlobalPosition, Desc: true, Limit: 2})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"dan", "bob"})

			n, err := s.Count(ctx, model.Filter{Category: &p3})
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
		})

		Convey("Then ascending score pages read the index in reverse", func() {
			got, err := s.List(ctx, model.Query{Sort: model.SortScore})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"dan", "bob", "alice", "carol"})

			got, err = s.List(ctx, model.Query{Sort: model.SortScore, Limit: 2, Offset: 1})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"bob", "alice"})
		})

		Convey("Then views without an index are sorted in memory", func() {
			got, err := s.List(ctx, model.Query{Filter: model.Filter{Category: &p3}, Sort: model.SortGlobalPosition, Desc: true, Limit: 2})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"dan", "bob"})

			got, err = s.List(ctx, model.Query{Sort: model.SortCategoryPosition})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"alice", "carol", "bob", "dan"})
		})

		Convey("Then moving a player between categories updates both indexes", func() {
			moved := rows[1]
			moved.Category = model.P2
			So(s.Upsert(ctx, moved), ShouldBeNil)

			n2, _ := s.Count(ctx, model.Filter{Category: &p2})
			n3, _ := s.Count(ctx, model.Filter{Category: &p3})
			So(n2, ShouldEqual, 2)
			So(n3, ShouldEqual, 2)

			got, err := s.List(ctx, model.Query{Filter: model.Filter{Category: &p2}, Sort: model.SortScore, Desc: true})
			So(err, ShouldBeNil)
			So(ids(got), ShouldResemble, []string{"carol", "alice"})
		})

		Convey("Then delete removes the row and its index entries", func() {
			So(s.Delete(ctx, "bob"), ShouldBeNil)
			So(errs.IsNotFound(s.Delete(ctx, "bob")), ShouldBeTrue)
			_, err := s.Get(ctx, "bob")
			So(errs.IsNotFound(err), ShouldBeTrue)
			n, _ := s.Count(ctx, model.Filter{})
			So(n, ShouldEqual, 3)
			got, _ := s.List(ctx, model.Query{Filter: model.Filter{Category: &p3}, Sort: model.SortCategoryPosition})
			So(ids(got), ShouldResemble, []string{"alice", "dan"})
			all, err := s.All(ctx)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 3)
		})

		Convey("When a row goes stale", func() {
			stale := rows[1]
			stale.Stale = true
			So(s.Upsert(ctx, stale), ShouldBeNil)

			Convey("Then it leaves every view and count", func() {
				got, err := s.List(ctx, model.Query{Sort: model.SortScore, Desc: true})
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{"carol", "bob", "dan"})
				got, err = s.List(ctx, model.Query{Filter: model.Filter{Category: &p3}, Sort: model.SortGlobalPosition})
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{"bob", "dan"})
				n, _ := s.Count(ctx, model.Filter{})
				So(n, ShouldEqual, 3)
			})

			Convey("Then it is still readable and exported", func() {
				r, err := s.Get(ctx, "alice")
				So(err, ShouldBeNil)
				So(r.Stale, ShouldBeTrue)
				all, err := s.All(ctx)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 4)
			})

			Convey("Then deleting it succeeds", func() {
				So(s.Delete(ctx, "alice"), ShouldBeNil)
				all, _ := s.All(ctx)
				So(len(all), ShouldEqual, 3)
			})
		})

		Convey("Then rows without a player id are rejected", func() {
			So(errs.IsInvalid(s.Upsert(ctx, model.Ranking{})), ShouldBeTrue)
			So(errs.IsInvalid(s.UpsertAll(ctx, []model.Ranking{{PlayerID: "x"}, {}})), ShouldBeTrue)
		})
	})
}

func TestStore_ScorePagesMatchApply(t *testing.T) {
	mr := miniredis.RunT(t)

	Convey("Given a store with tied scores across categories", t, func() {
		ctx := context.Background()
		s := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		defer func() { _ = s.Close() }()

		rows := make([]model.Ranking, 0, 61)
		for i := 0; i < 61; i++ {
			rows = append(rows, model.Ranking{PlayerID: fmt.Sprintf("p%03d", (i*17)%61), Score: float64(i%7) + 0.5, Category: model.Category(1 + i%3)})
		}
		So(s.UpsertAll(ctx, rows), ShouldBeNil)
		p2 := model.P2

		Convey("Then every score page equals sorting the rows", func() {
			for _, desc := range []bool{true, false} {
				for _, f := range []model.Filter{{}, {Category: &p2}} {
					for offset := 0; offset <= 63; offset += 9 {
						for _, limit := range []int{0, 1, 10} {
							q := model.Query{Filter: f, Sort: model.SortScore, Desc: desc, Limit: limit, Offset: offset}
							got, err := s.List(ctx, q)
							So(err, ShouldBeNil)
							So(ids(got), ShouldResemble, ids(model.Apply(rows, q)))
						}
					}
				}
			}
		})
	})
}

func TestOpen_Unreachable(t *testing.T) {
	Convey("Given an address nobody listens on", t, func() {
		Convey("Then Open fails as unexpected", func() {
			_, err := Open(context.Background(), "127.0.0.1:1", "", 0)
			So(errs.KindOf(err), ShouldEqual, errs.ErrUnexpected)
		})
	})
}
