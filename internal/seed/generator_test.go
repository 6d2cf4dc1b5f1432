package seed

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/rankings/internal/domain/model"
)

func TestGenerator_Players(t *testing.T) {
	convey.Convey("Given a seeded generator", t, func() {
		set := model.DefaultCategories()
		players, err := NewGenerator(7, set).Players(200)
		convey.So(err, convey.ShouldBeNil)
		convey.So(players, convey.ShouldHaveLength, 200)

		convey.Convey("Then ids are unique and every tier is valid", func() {
			seen := make(map[string]bool)
			for _, p := range players {
				convey.So(seen[p.Ref.ID], convey.ShouldBeFalse)
				seen[p.Ref.ID] = true
				convey.So(p.Statistics.PlayerID, convey.ShouldEqual, p.Ref.ID)
				convey.So(set.Valid(p.Ref.Category), convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then statistics are internally consistent", func() {
			for _, p := range players {
				st := p.Statistics
				convey.So(st.MatchesWon+st.MatchesLost, convey.ShouldEqual, st.MatchesPlayed)
				convey.So(st.TournamentsWon, convey.ShouldBeLessThanOrEqualTo, st.TournamentsPlayed)
				want := float64(st.MatchesWon) / float64(st.MatchesPlayed) * 100
				convey.So(math.Abs(st.WinRate-want), convey.ShouldBeLessThan, 0.01)
			}
		})

		convey.Convey("Then the same seed reproduces the population", func() {
			again, err := NewGenerator(7, set).Players(200)
			convey.So(err, convey.ShouldBeNil)
			convey.So(again, convey.ShouldResemble, players)

			other, _ := NewGenerator(8, set).Players(1)
			convey.So(other[0].Ref.ID, convey.ShouldNotEqual, players[0].Ref.ID)
		})
	})

	convey.Convey("Given a negative count", t, func() {
		_, err := NewGenerator(1, model.DefaultCategories()).Players(-1)

		convey.Convey("Then generation is refused", func() {
			convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestGenerator_Matches(t *testing.T) {
	convey.Convey("Given generated players", t, func() {
		gen := NewGenerator(3, model.DefaultCategories())
		players, err := gen.Players(5)
		convey.So(err, convey.ShouldBeNil)
		end := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

		convey.Convey("When matches are generated", func() {
			matches, err := gen.Matches(players, 20, end)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then each pairs two distinct players and the last ends at end", func() {
				convey.So(matches, convey.ShouldHaveLength, 20)
				for _, m := range matches {
					convey.So(m.MatchID, convey.ShouldNotBeEmpty)
					convey.So(m.PlayerIDs, convey.ShouldHaveLength, 2)
					convey.So(m.PlayerIDs[0], convey.ShouldNotEqual, m.PlayerIDs[1])
				}
				convey.So(matches[19].CompletedAt.Equal(end), convey.ShouldBeTrue)
				convey.So(matches[0].CompletedAt.Before(matches[19].CompletedAt), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When there are too few players", func() {
			_, err := gen.Matches(players[:1], 1, end)

			convey.Convey("Then generation is refused", func() {
				convey.So(errors.Is(err, ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
