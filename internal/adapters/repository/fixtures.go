package repository

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
)

// Fixtures is the YAML layout accepted by LoadFixtures:
//
//	players:
//	  - id: p1
//	    name: Alice
//	    category: P2
//	statistics:
//	  - player_id: p1
//	    matches_won: 7
//	    win_rate: 70
type Fixtures struct {
	Players    []FixturePlayer     `koanf:"players"`
	Statistics []FixtureStatistics `koanf:"statistics"`
}

// FixturePlayer is a catalog entry. Category is free text and goes through
// the legacy category mapping.
type FixturePlayer struct {
	ID       string `koanf:"id"`
	Name     string `koanf:"name"`
	Category string `koanf:"category"`
}

// FixtureStatistics mirrors model.Statistics.
type FixtureStatistics struct {
	PlayerID          string  `koanf:"player_id"`
	MatchesPlayed     int     `koanf:"matches_played"`
	MatchesWon        int     `koanf:"matches_won"`
	MatchesLost       int     `koanf:"matches_lost"`
	TotalPoints       float64 `koanf:"total_points"`
	AverageScore      float64 `koanf:"average_score"`
	TournamentsPlayed int     `koanf:"tournaments_played"`
	TournamentsWon    int     `koanf:"tournaments_won"`
	WinRate           float64 `koanf:"win_rate"`
}

// Statistics converts the fixture row.
func (f FixtureStatistics) Statistics() model.Statistics {
	return model.Statistics{
		PlayerID:          f.PlayerID,
		MatchesPlayed:     f.MatchesPlayed,
		MatchesWon:        f.MatchesWon,
		MatchesLost:       f.MatchesLost,
		TotalPoints:       f.TotalPoints,
		AverageScore:      f.AverageScore,
		TournamentsPlayed: f.TournamentsPlayed,
		TournamentsWon:    f.TournamentsWon,
		WinRate:           f.WinRate,
	}
}

// ReadFixtures parses a fixtures YAML file.
func ReadFixtures(path string) (*Fixtures, error) {
	const op = "repository.ReadFixtures"
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errs.WrapKind(op, errs.ErrInvalidArgument, fmt.Errorf("load %s: %w", path, err))
	}
	var f Fixtures
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errs.WrapKind(op, errs.ErrInvalidArgument, err)
	}
	return &f, nil
}

// Apply loads the fixtures into src, mapping categories through set.Legacy.
func (f *Fixtures) Apply(ctx context.Context, src *MemorySource, set model.CategorySet, log logger.Logger) {
	for _, p := range f.Players {
		c, ok := set.Legacy(p.Category)
		if !ok {
			log.Warn(ctx, "fixture category not recognised; using fallback",
				logger.String("playerID", p.ID),
				logger.String("category", p.Category),
				logger.String("fallback", c.String()),
			)
		}
		src.PutPlayer(model.PlayerRef{ID: p.ID, Name: p.Name, Category: c})
	}
	for _, st := range f.Statistics {
		src.PutStatistics(st.Statistics())
	}
	log.Info(ctx, "fixtures loaded",
		logger.Int("players", len(f.Players)),
		logger.Int("statistics", len(f.Statistics)),
	)
}

// LoadFixtures reads path and applies it to src.
func LoadFixtures(ctx context.Context, path string, src *MemorySource, set model.CategorySet, log logger.Logger) error {
	f, err := ReadFixtures(path)
	if err != nil {
		return err
	}
	f.Apply(ctx, src, set, log)
	return nil
}
