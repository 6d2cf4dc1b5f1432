package model

import (
	"math"
	"time"
)

// Ranking is the persisted leaderboard row of one player. A stale row belongs
// to a player that dropped out of the source data; it keeps its last positions
// for point lookups but is excluded from listings and counts.
type Ranking struct {
	ID                     string    `json:"id"`
	PlayerID               string    `json:"player_id"`
	Score                  float64   `json:"score"`
	GlobalPosition         int       `json:"global_position"`
	CategoryPosition       int       `json:"category_position"`
	Category               Category  `json:"category"`
	PreviousGlobalPosition *int      `json:"previous_global_position"`
	PositionChange         int       `json:"position_change"`
	LastCalculated         time.Time `json:"last_calculated"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	Stale                  bool      `json:"stale,omitempty"`
}

// RankingWithPlayer is a ranking joined with the player's identity. When the
// identity could not be resolved Player is nil and PlayerMissing is set; the
// row itself is never dropped.
type RankingWithPlayer struct {
	Ranking
	Player        *PlayerRef `json:"player,omitempty"`
	PlayerMissing bool       `json:"player_missing,omitempty"`
}

// scoreScale gives nine decimal places of resolution to score comparisons.
const scoreScale = 1_000_000_000

// ScoreKey converts a score to the fixed-point value used for ordering so that
// floating point noise below 1e-9 never decides a tie.
func ScoreKey(x float64) int64 {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * scoreScale)
	if scaled >= math.MaxInt64 {
		return math.MaxInt64
	}
	if scaled <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(scaled)
}
