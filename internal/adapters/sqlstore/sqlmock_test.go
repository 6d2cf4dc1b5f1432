package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, DriverPostgres)), mock
}

func TestStore_PostgresPlaceholders(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM rankings WHERE player_id = $1")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Get(context.Background(), "p1")
	assert.True(t, errs.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListPaging(t *testing.T) {
	s, mock := newMockStore(t)
	p2 := model.P2

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE stale = $1 AND category = $2 ORDER BY score_key DESC, player_id COLLATE "C" ASC LIMIT $3 OFFSET $4`)).
		WithArgs(false, "P2", 10, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "player_id"}))

	rows, err := s.List(context.Background(), model.Query{Filter: model.Filter{Category: &p2}, Sort: model.SortScore, Desc: true, Limit: 10, Offset: 20})
	assert.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AllIncludesStaleRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM rankings ORDER BY global_position ASC, player_id COLLATE "C" ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "player_id", "stale"}).AddRow("r1", "p1", true))

	rows, err := s.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Stale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchema_PostgresCollation(t *testing.T) {
	for _, stmt := range schema(DriverPostgres) {
		if strings.Contains(stmt, "INDEX IF NOT EXISTS idx_rankings") {
			assert.Contains(t, stmt, `player_id COLLATE "C"`)
		}
	}
	for _, stmt := range schema(DriverSQLite) {
		assert.NotContains(t, stmt, "COLLATE")
		assert.NotContains(t, stmt, "{{")
	}
}

func TestStore_DriverFailuresAreUnexpected(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("statistics", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM statistics WHERE player_id = $1")).
			WithArgs("p1").
			WillReturnError(boom)

		_, err := s.GetStatistics(ctx, "p1")
		assert.ErrorIs(t, err, errs.ErrUnexpected)
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("count", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM rankings")).WillReturnError(boom)

		_, err := s.Count(ctx, model.Filter{})
		assert.ErrorIs(t, err, errs.ErrUnexpected)
	})

	t.Run("batch rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO rankings"))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		prep.ExpectExec().WillReturnError(boom)
		mock.ExpectRollback()

		err := s.UpsertAll(ctx, []model.Ranking{{PlayerID: "a"}, {PlayerID: "b"}})
		assert.ErrorIs(t, err, errs.ErrUnexpected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("snapshot uses one transaction", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM statistics ORDER BY player_id")).
			WillReturnRows(sqlmock.NewRows([]string{"player_id", "matches_won"}).AddRow("p1", 3))
		mock.ExpectQuery(regexp.QuoteMeta("FROM players ORDER BY id")).WillReturnError(boom)
		mock.ExpectRollback()

		_, _, err := s.Snapshot(ctx)
		assert.ErrorIs(t, err, errs.ErrUnexpected)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete of missing row", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rankings WHERE player_id = $1")).
			WithArgs("p9").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.Delete(ctx, "p9")
		assert.True(t, errs.IsNotFound(err))
	})
}
