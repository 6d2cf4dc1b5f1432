package seed

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rankings/internal/domain/model"
)

// Ranges of the generated statistics.
const (
	minMatchesPlayed   = 5
	maxMatchesPlayed   = 120
	matchesPerEvent    = 10
	minAverageScore    = 4.0
	averageScoreSpread = 16.0
	percent            = 100
	winRateDecimals    = 100
	playersPerMatch    = 2
	matchSpacing       = time.Minute
)

// band is a share of the population and the win fraction range it plays at.
type band struct {
	min, span float64
}

// Performance bands as win fractions. A band is picked uniformly, so
// overlapping middle bands dominate and elites stay rare.
var bands = []band{
	{min: 0.30, span: 0.40}, // average
	{min: 0.70, span: 0.20}, // high
	{min: 0.01, span: 0.29}, // low
	{min: 0.90, span: 0.10}, // elite
	{min: 0.01, span: 0.09}, // very low
	{min: 0.60, span: 0.20}, // mid high
	{min: 0.20, span: 0.20}, // mid low
	{min: 0.01, span: 0.99}, // anything
}

// Generator builds reproducible populations. It is not safe for concurrent use.
type Generator struct {
	src        *rand.ChaCha8
	rng        *rand.Rand
	categories model.CategorySet
}

// NewGenerator seeds a generator; categories assigns players to tiers.
func NewGenerator(seed uint64, categories model.CategorySet) *Generator {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	return &Generator{src: src, rng: rand.New(src), categories: categories}
}

func (g *Generator) id() (string, error) {
	u, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return u.String(), nil
}

// Players generates n players with consistent statistics: won plus lost equals
// played, and the win rate is derived from them.
func (g *Generator) Players(n int) ([]Player, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: players must not be negative, got %d", ErrInvalidConfig, n)
	}
	tiers := g.categories.All()
	out := make([]Player, 0, n)
	for i := range n {
		id, err := g.id()
		if err != nil {
			return nil, err
		}
		b := bands[g.rng.IntN(len(bands))]
		fraction := b.min + g.rng.Float64()*b.span

		played := minMatchesPlayed + g.rng.IntN(maxMatchesPlayed-minMatchesPlayed+1)
		won := int(math.Round(float64(played) * fraction))
		tournaments := played / matchesPerEvent
		tournamentsWon := 0
		for range tournaments {
			if g.rng.Float64() < fraction*fraction {
				tournamentsWon++
			}
		}
		avg := minAverageScore + averageScoreSpread*(fraction+g.rng.Float64())/2
		avg = math.Round(avg*winRateDecimals) / winRateDecimals

		out = append(out, Player{
			Ref: model.PlayerRef{
				ID:       id,
				Name:     fmt.Sprintf("Player %04d", i+1),
				Category: tiers[g.rng.IntN(len(tiers))],
			},
			Statistics: model.Statistics{
				PlayerID:          id,
				MatchesPlayed:     played,
				MatchesWon:        won,
				MatchesLost:       played - won,
				TotalPoints:       math.Round(avg*float64(played)*winRateDecimals) / winRateDecimals,
				AverageScore:      avg,
				TournamentsPlayed: tournaments,
				TournamentsWon:    tournamentsWon,
				WinRate:           math.Round(float64(won)/float64(played)*percent*winRateDecimals) / winRateDecimals,
			},
		})
	}
	return out, nil
}

// Matches pairs random distinct players into n completed matches, spaced one
// minute apart and ending at end.
func (g *Generator) Matches(players []Player, n int, end time.Time) ([]model.MatchCompleted, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: matches must not be negative, got %d", ErrInvalidConfig, n)
	}
	if n > 0 && len(players) < playersPerMatch {
		return nil, fmt.Errorf("%w: a match needs %d players, have %d", ErrInvalidConfig, playersPerMatch, len(players))
	}
	out := make([]model.MatchCompleted, 0, n)
	for i := range n {
		id, err := g.id()
		if err != nil {
			return nil, err
		}
		a := g.rng.IntN(len(players))
		b := g.rng.IntN(len(players) - 1)
		if b >= a {
			b++
		}
		out = append(out, model.MatchCompleted{
			MatchID:     id,
			PlayerIDs:   []string{players[a].Ref.ID, players[b].Ref.ID},
			CompletedAt: end.Add(-time.Duration(n-1-i) * matchSpacing).UTC(),
		})
	}
	return out, nil
}
