// Command seed fills the statistics database of a running rankings service
// with a synthetic population, replays completed matches against it and
// verifies the rankings it publishes. The service must read statistics from
// the same database (source_driver sqlite or postgres).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/rankings/internal/adapters/sqlstore"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/scoring"
	"github.com/okian/rankings/internal/seed"
	"github.com/okian/rankings/pkg/logger"
)

// Default configuration constants.
const (
	defaultPlayers  = 1000
	defaultMatches  = 5000
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultPageSize = 100
	defaultRunLimit = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		driver     = flag.String("driver", sqlstore.DriverSQLite, "Statistics database driver: sqlite or postgres")
		dsn        = flag.String("dsn", "file:rankings.db?_pragma=busy_timeout(5000)", "Statistics database DSN")
		players    = flag.Int("players", defaultPlayers, "Number of players to generate")
		matches    = flag.Int("matches", defaultMatches, "Number of completed matches to send")
		categories = flag.Int("categories", 3, "Number of categories P1..Pn")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent HTTP requests")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		pageSize   = flag.Int("page", defaultPageSize, "Page size used to read rankings back")
		seedValue  = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		skipVerify = flag.Bool("skip-verify", false, "Do not verify the published rankings")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)
	defer cancel()

	set, err := model.NewCategorySet(*categories, 0)
	if err != nil {
		log.Error(ctx, "invalid categories", logger.Error(err))
		os.Exit(1)
	}

	db, err := sqlstore.Open(ctx, *driver, *dsn, sqlstore.WithCategories(set), sqlstore.WithLogger(log.Named("sqlstore")))
	if err != nil {
		log.Error(ctx, "failed to open statistics database", logger.Error(err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	cfg := &seed.Config{
		BaseURL:    *baseURL,
		Players:    *players,
		Matches:    *matches,
		Workers:    *workers,
		Timeout:    *timeout,
		PageSize:   *pageSize,
		Seed:       *seedValue,
		Categories: set,
		Weights:    scoring.DefaultWeights(),
		SkipVerify: *skipVerify,
	}
	log.Info(ctx, "seed configured", logger.Any("seed", *seedValue))

	if _, err := seed.Run(ctx, cfg, db, log.Named("seed")); err != nil {
		log.Error(ctx, "seed run failed", logger.Error(err))
		os.Exit(1)
	}
}
