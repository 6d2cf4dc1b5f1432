// Package sqlstore persists rankings and reads statistics and players from a
// SQL database through sqlx. SQLite (modernc, pure Go) and PostgreSQL
// (lib/pq) are supported; queries are written with '?' placeholders and
// rebound for the active driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

const (
	backendSQL  = "sql"
	pingTimeout = 5 * time.Second
)

// Store implements the ranking store, the statistics source and the player
// catalog on one database handle.
type Store struct {
	db         *sqlx.DB
	dialect    string
	categories model.CategorySet
	logger     logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithCategories sets the category set used to map stored category values.
func WithCategories(set model.CategorySet) Option {
	return func(s *Store) {
		if set.Count() > 0 {
			s.categories = set
		}
	}
}

// WithLogger sets the logger used for data integrity warnings.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to the database, verifies the connection and applies the schema.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	const op = "sqlstore.Open"
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, errs.Invalidf(op, "unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, fmt.Errorf("open %s: %w", driver, err))
	}
	if driver == DriverSQLite {
		// a single writer keeps sqlite free of SQLITE_BUSY and lets ":memory:" work
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errs.WrapKind(op, errs.ErrUnexpected, fmt.Errorf("ping %s: %w", driver, err))
	}

	s := New(db, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open handle. The dialect is taken from the handle's driver name.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		dialect:    db.DriverName(),
		categories: model.DefaultCategories(),
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errs.WrapKind("sqlstore.Migrate", errs.ErrUnexpected, err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tooling.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backendSQL, op, float64(time.Since(start).Microseconds())/1000, err)
}

// classify maps driver errors to error kinds: a missing row is ErrNotFound,
// everything else ErrUnexpected.
func classify(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.WrapKind(op, errs.ErrNotFound, notFound)
	}
	return errs.WrapKind(op, errs.ErrUnexpected, err)
}

// category maps a stored category value into the configured set.
func (s *Store) category(ctx context.Context, playerID, raw string) model.Category {
	c, ok := s.categories.Legacy(raw)
	if !ok {
		s.logger.Warn(ctx, "stored category not recognised; using fallback",
			logger.String("playerID", playerID),
			logger.String("category", raw),
			logger.String("fallback", c.String()),
		)
		metrics.RecordDataIntegrity("legacy_category")
	}
	return c
}

// withTx runs fn inside a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
