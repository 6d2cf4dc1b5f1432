package scoring_test

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	scoring "github.com/okian/rankings/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestScore(t *testing.T) {
	Convey("Given the default ranking policy", t, func() {
		Convey("When scoring the reference players", func() {
			first := model.Statistics{PlayerID: "a", WinRate: 70, AverageScore: 12, TournamentsWon: 1, MatchesWon: 7}
			second := model.Statistics{PlayerID: "b", WinRate: 50, AverageScore: 10, TournamentsWon: 0, MatchesWon: 4}
			third := model.Statistics{PlayerID: "c", WinRate: 75, AverageScore: 12.5, TournamentsWon: 2, MatchesWon: 9}

			Convey("Then each score follows the weighted sum", func() {
				So(scoring.Score(first), ShouldAlmostEqual, 48.7, 1e-9)
				So(scoring.Score(second), ShouldAlmostEqual, 24.2, 1e-9)
				So(scoring.Score(third), ShouldAlmostEqual, 66.45, 1e-9)
			})
		})

		Convey("When scoring empty statistics", func() {
			Convey("Then the score is zero", func() {
				So(scoring.Score(model.Statistics{}), ShouldEqual, 0)
				So(scoring.Score(model.ZeroStatistics("x")), ShouldEqual, 0)
			})
		})

		Convey("When a tournament win is compared to matches", func() {
			Convey("Then one tournament outweighs forty-nine match wins", func() {
				tw := model.Statistics{TournamentsWon: 1}
				mw := model.Statistics{MatchesWon: 49}
				So(scoring.Score(tw), ShouldBeGreaterThan, scoring.Score(mw))
			})
		})
	})

	Convey("Given custom weights", t, func() {
		w := scoring.Weights{WinRate: 1, AverageScore: 0, TournamentWin: 0, MatchWin: 0}
		So(w.Validate(), ShouldBeNil)
		So(w.Score(model.Statistics{WinRate: 42}), ShouldEqual, 42)

		Convey("Then invalid weights are rejected", func() {
			So(errs.IsInvalid(scoring.Weights{WinRate: -1}.Validate()), ShouldBeTrue)
			So(errs.IsInvalid(scoring.Weights{MatchWin: math.NaN()}.Validate()), ShouldBeTrue)
			So(scoring.DefaultWeights().Validate(), ShouldBeNil)
		})
	})
}

func TestScoreProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	stats := func(winRate, avg float64, tournaments, matches int) model.Statistics {
		return model.Statistics{WinRate: winRate, AverageScore: avg, TournamentsWon: tournaments, MatchesWon: matches}
	}

	properties.Property("score is deterministic", prop.ForAll(
		func(winRate, avg float64, tournaments, matches int) bool {
			s := stats(winRate, avg, tournaments, matches)
			return scoring.Score(s) == scoring.Score(s)
		},
		gen.Float64Range(0, 100), gen.Float64Range(0, 50), gen.IntRange(0, 20), gen.IntRange(0, 500),
	))

	properties.Property("score grows with every match win", prop.ForAll(
		func(winRate, avg float64, tournaments, matches int) bool {
			s := stats(winRate, avg, tournaments, matches)
			more := s
			more.MatchesWon++
			return scoring.Score(more) > scoring.Score(s)
		},
		gen.Float64Range(0, 100), gen.Float64Range(0, 50), gen.IntRange(0, 20), gen.IntRange(0, 500),
	))

	properties.Property("score is non-negative for valid statistics", prop.ForAll(
		func(winRate, avg float64, tournaments, matches int) bool {
			return scoring.Score(stats(winRate, avg, tournaments, matches)) >= 0
		},
		gen.Float64Range(0, 100), gen.Float64Range(0, 50), gen.IntRange(0, 20), gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
