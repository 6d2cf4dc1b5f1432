package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/metrics"
)

var _ repository.Store = (*Store)(nil)

const rankingColumns = `id, player_id, score, score_key, global_position, category_position, category,
	previous_global_position, position_change, last_calculated, created_at, updated_at, stale`

const upsertRanking = `INSERT INTO rankings (` + rankingColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (player_id) DO UPDATE SET
		id = excluded.id,
		score = excluded.score,
		score_key = excluded.score_key,
		global_position = excluded.global_position,
		category_position = excluded.category_position,
		category = excluded.category,
		previous_global_position = excluded.previous_global_position,
		position_change = excluded.position_change,
		last_calculated = excluded.last_calculated,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		stale = excluded.stale`

type rankingRow struct {
	ID                     string        `db:"id"`
	PlayerID               string        `db:"player_id"`
	Score                  float64       `db:"score"`
	ScoreKey               int64         `db:"score_key"`
	GlobalPosition         int           `db:"global_position"`
	CategoryPosition       int           `db:"category_position"`
	Category               string        `db:"category"`
	PreviousGlobalPosition sql.NullInt64 `db:"previous_global_position"`
	PositionChange         int           `db:"position_change"`
	LastCalculated         time.Time     `db:"last_calculated"`
	CreatedAt              time.Time     `db:"created_at"`
	UpdatedAt              time.Time     `db:"updated_at"`
	Stale                  bool          `db:"stale"`
}

func (r rankingRow) args() []any {
	var prev any
	if r.PreviousGlobalPosition.Valid {
		prev = r.PreviousGlobalPosition.Int64
	}
	return []any{
		r.ID, r.PlayerID, r.Score, r.ScoreKey, r.GlobalPosition, r.CategoryPosition, r.Category,
		prev, r.PositionChange, r.LastCalculated, r.CreatedAt, r.UpdatedAt, r.Stale,
	}
}

func fromRanking(r model.Ranking) rankingRow {
	row := rankingRow{
		ID:               r.ID,
		PlayerID:         r.PlayerID,
		Score:            r.Score,
		ScoreKey:         model.ScoreKey(r.Score),
		GlobalPosition:   r.GlobalPosition,
		CategoryPosition: r.CategoryPosition,
		Category:         r.Category.String(),
		PositionChange:   r.PositionChange,
		LastCalculated:   r.LastCalculated.UTC(),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
		Stale:            r.Stale,
	}
	if r.PreviousGlobalPosition != nil {
		row.PreviousGlobalPosition = sql.NullInt64{Int64: int64(*r.PreviousGlobalPosition), Valid: true}
	}
	return row
}

func (s *Store) toRanking(ctx context.Context, row rankingRow) model.Ranking {
	r := model.Ranking{
		ID:               row.ID,
		PlayerID:         row.PlayerID,
		Score:            row.Score,
		GlobalPosition:   row.GlobalPosition,
		CategoryPosition: row.CategoryPosition,
		Category:         s.category(ctx, row.PlayerID, row.Category),
		PositionChange:   row.PositionChange,
		LastCalculated:   row.LastCalculated.UTC(),
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
		Stale:            row.Stale,
	}
	if row.PreviousGlobalPosition.Valid {
		prev := int(row.PreviousGlobalPosition.Int64)
		r.PreviousGlobalPosition = &prev
	}
	return r
}

// Get returns the ranking of a player.
func (s *Store) Get(ctx context.Context, playerID string) (r model.Ranking, err error) {
	const op = "sqlstore.Get"
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	var row rankingRow
	err = s.db.GetContext(ctx, &row, s.rebind(`SELECT `+rankingColumns+` FROM rankings WHERE player_id = ?`), playerID)
	if err != nil {
		return model.Ranking{}, classify(op, err, repository.ErrRankingNotFound)
	}
	return s.toRanking(ctx, row), nil
}

// playerIDOrder is the player id sort expression of a dialect. Ties must break
// by byte order like model.Compare does; postgres would otherwise use the
// database locale.
func playerIDOrder(dialect string) string {
	if dialect == DriverPostgres {
		return `player_id COLLATE "C"`
	}
	return "player_id"
}

// orderBy renders the ORDER BY clause matching model.Compare. Only fixed
// column names are ever interpolated.
func orderBy(q model.Query, dialect string) string {
	id := playerIDOrder(dialect)
	dir, rev := "ASC", "DESC"
	if q.Desc {
		dir, rev = "DESC", "ASC"
	}
	switch q.Sort {
	case model.SortScore:
		return "score_key " + dir + ", " + id + " " + rev
	case model.SortCategoryPosition:
		return "category_position " + dir + ", " + id + " " + dir
	default:
		return "global_position " + dir + ", " + id + " " + dir
	}
}

// where selects the rows of a view. Stale rows belong to no view.
func where(f model.Filter) (string, []any) {
	if f.Category == nil {
		return " WHERE stale = ?", []any{false}
	}
	return " WHERE stale = ? AND category = ?", []any{false, f.Category.String()}
}

// List returns one page of rankings.
func (s *Store) List(ctx context.Context, q model.Query) (out []model.Ranking, err error) {
	const op = "sqlstore.List"
	defer func(start time.Time) { observe("list", start, err) }(time.Now())

	var b strings.Builder
	b.WriteString(`SELECT ` + rankingColumns + ` FROM rankings`)
	cond, args := where(q.Filter)
	b.WriteString(cond)
	b.WriteString(" ORDER BY " + orderBy(q, s.dialect))
	switch {
	case q.Limit > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, max(q.Offset, 0))
	case q.Offset > 0 && s.dialect == DriverSQLite:
		b.WriteString(" LIMIT -1 OFFSET ?")
		args = append(args, q.Offset)
	case q.Offset > 0:
		b.WriteString(" OFFSET ?")
		args = append(args, q.Offset)
	}

	return s.selectRankings(ctx, op, b.String(), args...)
}

func (s *Store) selectRankings(ctx context.Context, op, query string, args ...any) ([]model.Ranking, error) {
	var rows []rankingRow
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, classify(op, err, repository.ErrRankingNotFound)
	}
	out := make([]model.Ranking, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.toRanking(ctx, row))
	}
	return out, nil
}

// Count returns the number of ranked rows in a view.
func (s *Store) Count(ctx context.Context, f model.Filter) (n int, err error) {
	const op = "sqlstore.Count"
	defer func(start time.Time) { observe("count", start, err) }(time.Now())

	cond, args := where(f)
	if err = s.db.GetContext(ctx, &n, s.rebind(`SELECT COUNT(*) FROM rankings`+cond), args...); err != nil {
		return 0, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	return n, nil
}

// All returns every stored ranking, stale rows included.
func (s *Store) All(ctx context.Context) (out []model.Ranking, err error) {
	const op = "sqlstore.All"
	defer func(start time.Time) { observe("all", start, err) }(time.Now())

	return s.selectRankings(ctx, op, `SELECT `+rankingColumns+` FROM rankings ORDER BY `+
		orderBy(model.Query{Sort: model.SortGlobalPosition}, s.dialect))
}

// Upsert replaces the ranking of one player with a single statement.
func (s *Store) Upsert(ctx context.Context, r model.Ranking) (err error) {
	const op = "sqlstore.Upsert"
	defer func(start time.Time) { observe("upsert", start, err) }(time.Now())

	if r.PlayerID == "" {
		return errs.WrapKind(op, errs.ErrInvalidArgument, repository.ErrInvalidRanking)
	}
	if _, err = s.db.ExecContext(ctx, s.rebind(upsertRanking), fromRanking(r).args()...); err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	return nil
}

// UpsertAll replaces a batch of rankings in one transaction.
func (s *Store) UpsertAll(ctx context.Context, rs []model.Ranking) (err error) {
	const op = "sqlstore.UpsertAll"
	defer func(start time.Time) { observe("upsert_all", start, err) }(time.Now())

	for _, r := range rs {
		if r.PlayerID == "" {
			return errs.WrapKind(op, errs.ErrInvalidArgument, repository.ErrInvalidRanking)
		}
	}

	err = s.withTx(ctx, nil, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, s.rebind(upsertRanking))
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range rs {
			if _, err := stmt.ExecContext(ctx, fromRanking(r).args()...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	if n, cerr := s.Count(ctx, model.Filter{}); cerr == nil {
		metrics.UpdateTotalRankings(n)
	}
	return nil
}

// Delete removes the ranking of one player.
func (s *Store) Delete(ctx context.Context, playerID string) (err error) {
	const op = "sqlstore.Delete"
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM rankings WHERE player_id = ?`), playerID)
	if err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	if n == 0 {
		return errs.WrapKind(op, errs.ErrNotFound, repository.ErrRankingNotFound)
	}
	return nil
}
