// Package scoring computes the ranking score of a player from accumulated statistics.
package scoring

import (
	"math"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
)

// Default policy weights.
const (
	DefaultWinRateWeight       = 0.4
	DefaultAverageScoreWeight  = 0.3
	DefaultTournamentWinWeight = 15
	DefaultMatchWinWeight      = 0.3
)

// Weights are the coefficients of the linear ranking score.
type Weights struct {
	WinRate       float64
	AverageScore  float64
	TournamentWin float64
	MatchWin      float64
}

// DefaultWeights returns the product ranking policy:
//
//	score = winRate*0.4 + averageScore*0.3 + tournamentsWon*15 + matchesWon*0.3
func DefaultWeights() Weights {
	return Weights{
		WinRate:       DefaultWinRateWeight,
		AverageScore:  DefaultAverageScoreWeight,
		TournamentWin: DefaultTournamentWinWeight,
		MatchWin:      DefaultMatchWinWeight,
	}
}

// Validate rejects non-finite or negative weights.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"win_rate":       w.WinRate,
		"average_score":  w.AverageScore,
		"tournament_win": w.TournamentWin,
		"match_win":      w.MatchWin,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return errs.Invalidf("scoring.Weights", "weight %s must be a finite non-negative number, got %v", name, v)
		}
	}
	return nil
}

// Score is pure and total: identical statistics always yield the same score.
func (w Weights) Score(s model.Statistics) float64 {
	return s.WinRate*w.WinRate +
		s.AverageScore*w.AverageScore +
		float64(s.TournamentsWon)*w.TournamentWin +
		float64(s.MatchesWon)*w.MatchWin
}

// Score applies the default weights.
func Score(s model.Statistics) float64 {
	return DefaultWeights().Score(s)
}
