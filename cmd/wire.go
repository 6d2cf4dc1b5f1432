package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/rankings/internal/adapters/http/api"
	"github.com/okian/rankings/internal/adapters/http/swagger"
	"github.com/okian/rankings/internal/adapters/redisstore"
	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/adapters/sqlstore"
	"github.com/okian/rankings/internal/app"
	"github.com/okian/rankings/internal/config"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/ranking"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

// backends holds the collaborators selected by configuration.
type backends struct {
	store   repository.Store
	stats   app.StatisticsSource
	players app.PlayerCatalog
	closers []func() error
}

func (b *backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// categorySet builds the configured tiers.
func categorySet(cfg *config.Config) (model.CategorySet, error) {
	var fallback model.Category
	if raw := strings.TrimSpace(cfg.FallbackCategory); raw != "" {
		if err := fallback.UnmarshalText([]byte(raw)); err != nil {
			return model.CategorySet{}, fmt.Errorf("%w: fallback_category: %w", config.ErrInvalidConfig, err)
		}
	}
	set, err := model.NewCategorySet(cfg.CategoryCount, fallback)
	if err != nil {
		return model.CategorySet{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	return set, nil
}

// openBackends opens the statistics source, player catalog and ranking store.
func openBackends(ctx context.Context, cfg *config.Config, set model.CategorySet, log logger.Logger) (*backends, error) {
	b := &backends{}

	var db *sqlstore.Store
	switch cfg.SourceDriver {
	case config.DriverMemory:
		src := repository.NewMemorySource()
		if cfg.FixturesPath != "" {
			if err := repository.LoadFixtures(ctx, cfg.FixturesPath, src, set, log.Named("fixtures")); err != nil {
				return nil, err
			}
		}
		b.stats, b.players = src, src
	case config.DriverSQLite, config.DriverPostgres:
		var err error
		db, err = sqlstore.Open(ctx, cfg.SourceDriver, cfg.DatabaseDSN,
			sqlstore.WithCategories(set),
			sqlstore.WithLogger(log.Named("sqlstore")),
		)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.stats, b.players = db, db
	}

	switch cfg.RankingStore {
	case config.StoreMemory:
		b.store = repository.NewMemoryStore()
	case config.StoreSQL:
		b.store = db
	case config.StoreRedis:
		rs, err := redisstore.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			redisstore.WithKeyPrefix(cfg.RedisKeyPrefix),
		)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.closers = append(b.closers, rs.Close)
		b.store = rs
	}

	log.Info(ctx, "backends ready",
		logger.String("source", cfg.SourceDriver),
		logger.String("store", cfg.RankingStore),
	)
	return b, nil
}

// metricsOptions maps the metrics settings of cfg to collector options.
func metricsOptions(cfg *config.Config) []metrics.Option {
	return []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.MetricsHistogramBuckets),
	}
}

// newService builds the ranking service over b.
func newService(cfg *config.Config, set model.CategorySet, b *backends, log logger.Logger) *app.Service {
	computer := ranking.New(
		ranking.WithWeights(cfg.Weights()),
		ranking.WithCategories(set),
		ranking.WithLogger(log.Named("ranking")),
	)
	return app.New(b.store, b.stats, b.players,
		app.WithLogger(log.Named("service")),
		app.WithComputer(computer),
		app.WithStatisticsPolicy(cfg.OnStatisticsError),
		app.WithRecomputeMode(cfg.RecomputeMode),
		app.WithListLimits(cfg.DefaultListLimit, cfg.MaxListLimit),
		app.WithJoinConcurrency(cfg.JoinConcurrency),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
	)
}

// newHandler registers the documentation and business routes.
func newHandler(ctx context.Context, svc *app.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, log.Named("api")).Register(ctx, mux)
	return mux
}
