package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
)

const statisticsColumns = `player_id, matches_played, matches_won, matches_lost, total_points,
	average_score, tournaments_played, tournaments_won, win_rate`

type statisticsRow struct {
	PlayerID          string  `db:"player_id"`
	MatchesPlayed     int     `db:"matches_played"`
	MatchesWon        int     `db:"matches_won"`
	MatchesLost       int     `db:"matches_lost"`
	TotalPoints       float64 `db:"total_points"`
	AverageScore      float64 `db:"average_score"`
	TournamentsPlayed int     `db:"tournaments_played"`
	TournamentsWon    int     `db:"tournaments_won"`
	WinRate           float64 `db:"win_rate"`
}

func (r statisticsRow) statistics() model.Statistics {
	return model.Statistics{
		PlayerID:          r.PlayerID,
		MatchesPlayed:     r.MatchesPlayed,
		MatchesWon:        r.MatchesWon,
		MatchesLost:       r.MatchesLost,
		TotalPoints:       r.TotalPoints,
		AverageScore:      r.AverageScore,
		TournamentsPlayed: r.TournamentsPlayed,
		TournamentsWon:    r.TournamentsWon,
		WinRate:           r.WinRate,
	}
}

type playerRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Category string `db:"category"`
}

// GetStatistics returns the statistics of one player.
func (s *Store) GetStatistics(ctx context.Context, playerID string) (st model.Statistics, err error) {
	const op = "sqlstore.GetStatistics"
	defer func(start time.Time) { observe("get_statistics", start, err) }(time.Now())

	var row statisticsRow
	err = s.db.GetContext(ctx, &row, s.rebind(`SELECT `+statisticsColumns+` FROM statistics WHERE player_id = ?`), playerID)
	if err != nil {
		return model.Statistics{}, classify(op, err, repository.ErrStatisticsNotFound)
	}
	return row.statistics(), nil
}

// AllStatistics returns every statistics row ordered by player id.
func (s *Store) AllStatistics(ctx context.Context) (out []model.Statistics, err error) {
	defer func(start time.Time) { observe("all_statistics", start, err) }(time.Now())
	out, err = s.allStatistics(ctx, s.db)
	return out, errs.WrapKind("sqlstore.AllStatistics", errs.ErrUnexpected, err)
}

// GetPlayer returns one player.
func (s *Store) GetPlayer(ctx context.Context, id string) (p model.PlayerRef, err error) {
	const op = "sqlstore.GetPlayer"
	defer func(start time.Time) { observe("get_player", start, err) }(time.Now())

	var row playerRow
	if err = s.db.GetContext(ctx, &row, s.rebind(`SELECT id, name, category FROM players WHERE id = ?`), id); err != nil {
		return model.PlayerRef{}, classify(op, err, repository.ErrPlayerNotFound)
	}
	return s.toPlayer(ctx, row), nil
}

// AllPlayers returns every player ordered by id.
func (s *Store) AllPlayers(ctx context.Context) (out []model.PlayerRef, err error) {
	defer func(start time.Time) { observe("all_players", start, err) }(time.Now())
	out, err = s.allPlayers(ctx, s.db)
	return out, errs.WrapKind("sqlstore.AllPlayers", errs.ErrUnexpected, err)
}

// PlayersByCategory returns the players of one category ordered by id.
// Rows holding legacy category values are mapped before filtering, so a
// player stored as "semi-pro" shows up under the fallback tier.
func (s *Store) PlayersByCategory(ctx context.Context, c model.Category) (out []model.PlayerRef, err error) {
	all, err := s.AllPlayers(ctx)
	if err != nil {
		return nil, err
	}
	out = make([]model.PlayerRef, 0, len(all)/max(s.categories.Count(), 1))
	for _, p := range all {
		if p.Category == c {
			out = append(out, p)
		}
	}
	return out, nil
}

// Snapshot reads statistics and players inside one transaction so a
// computation never mixes two states of the source.
func (s *Store) Snapshot(ctx context.Context) (stats []model.Statistics, players []model.PlayerRef, err error) {
	const op = "sqlstore.Snapshot"
	defer func(start time.Time) { observe("snapshot", start, err) }(time.Now())

	var opts *sql.TxOptions
	if s.dialect == DriverPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	err = s.withTx(ctx, opts, func(tx *sqlx.Tx) error {
		var err error
		if stats, err = s.allStatistics(ctx, tx); err != nil {
			return err
		}
		players, err = s.allPlayers(ctx, tx)
		return err
	})
	if err != nil {
		return nil, nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	return stats, players, nil
}

func (s *Store) allStatistics(ctx context.Context, q sqlx.QueryerContext) ([]model.Statistics, error) {
	var rows []statisticsRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT `+statisticsColumns+` FROM statistics ORDER BY player_id`); err != nil {
		return nil, err
	}
	out := make([]model.Statistics, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.statistics())
	}
	return out, nil
}

func (s *Store) allPlayers(ctx context.Context, q sqlx.QueryerContext) ([]model.PlayerRef, error) {
	var rows []playerRow
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT id, name, category FROM players ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]model.PlayerRef, 0, len(rows))
	for _, r := range rows {
		out = append(out, s.toPlayer(ctx, r))
	}
	return out, nil
}

func (s *Store) toPlayer(ctx context.Context, r playerRow) model.PlayerRef {
	return model.PlayerRef{ID: r.ID, Name: r.Name, Category: s.category(ctx, r.ID, r.Category)}
}

const upsertPlayer = `INSERT INTO players (id, name, category) VALUES (?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET name = excluded.name, category = excluded.category`

const upsertStatistics = `INSERT INTO statistics (` + statisticsColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (player_id) DO UPDATE SET
		matches_played = excluded.matches_played,
		matches_won = excluded.matches_won,
		matches_lost = excluded.matches_lost,
		total_points = excluded.total_points,
		average_score = excluded.average_score,
		tournaments_played = excluded.tournaments_played,
		tournaments_won = excluded.tournaments_won,
		win_rate = excluded.win_rate`

// PutPlayer inserts or replaces a catalog entry. category is stored verbatim
// so legacy free-text values can be seeded.
func (s *Store) PutPlayer(ctx context.Context, id, name, category string) error {
	if id == "" {
		return errs.Invalidf("sqlstore.PutPlayer", "player id must not be empty")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(upsertPlayer), id, name, category)
	return errs.WrapKind("sqlstore.PutPlayer", errs.ErrUnexpected, err)
}

// PutStatistics inserts or replaces the statistics of a player.
func (s *Store) PutStatistics(ctx context.Context, st model.Statistics) error {
	if st.PlayerID == "" {
		return errs.Invalidf("sqlstore.PutStatistics", "player id must not be empty")
	}
	_, err := s.db.ExecContext(ctx, s.rebind(upsertStatistics), statisticsArgs(st)...)
	return errs.WrapKind("sqlstore.PutStatistics", errs.ErrUnexpected, err)
}

// Seed writes players and statistics in one transaction.
func (s *Store) Seed(ctx context.Context, players []model.PlayerRef, stats []model.Statistics) error {
	err := s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		for _, p := range players {
			if _, err := tx.ExecContext(ctx, s.rebind(upsertPlayer), p.ID, p.Name, p.Category.String()); err != nil {
				return err
			}
		}
		for _, st := range stats {
			if _, err := tx.ExecContext(ctx, s.rebind(upsertStatistics), statisticsArgs(st)...); err != nil {
				return err
			}
		}
		return nil
	})
	return errs.WrapKind("sqlstore.Seed", errs.ErrUnexpected, err)
}

func statisticsArgs(st model.Statistics) []any {
	return []any{
		st.PlayerID, st.MatchesPlayed, st.MatchesWon, st.MatchesLost, st.TotalPoints,
		st.AverageScore, st.TournamentsPlayed, st.TournamentsWon, st.WinRate,
	}
}
