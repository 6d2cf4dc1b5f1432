// Package seed generates a synthetic player population, loads it into a
// statistics source and drives the rankings service over HTTP to check that
// the published positions agree with the scores.
package seed

import (
	"time"

	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/scoring"
)

// Config holds configuration for a seed run.
type Config struct {
	BaseURL    string          // Base URL of the service
	Players    int             // Number of players to generate
	Matches    int             // Number of match completed notifications to send
	Workers    int             // Concurrent HTTP requests
	Timeout    time.Duration   // HTTP request timeout
	PageSize   int             // Page size used when reading rankings back
	Seed       uint64          // Random seed; identical seeds give identical populations
	Categories model.CategorySet
	Weights    scoring.Weights // Weights the service scores with
	SkipVerify bool
}

// Stats holds counters of a seed run.
type Stats struct {
	PlayersSeeded    int
	MatchesAccepted  int
	MatchesDuplicate int
	MatchesFailed    int
	RankingsRead     int
	Duration         time.Duration
}

// Player is a generated player together with its statistics.
type Player struct {
	Ref        model.PlayerRef
	Statistics model.Statistics
}
