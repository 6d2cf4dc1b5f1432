package seed

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
)

// Sink stores the generated population where the service reads statistics
// and players from. *sqlstore.Store satisfies it.
type Sink interface {
	Seed(ctx context.Context, players []model.PlayerRef, stats []model.Statistics) error
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Players < 0 || c.Matches < 0:
		return fmt.Errorf("%w: players and matches must not be negative", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.PageSize < 1:
		return fmt.Errorf("%w: page size must be positive, got %d", ErrInvalidConfig, c.PageSize)
	case c.Categories.Count() < 1:
		return fmt.Errorf("%w: no categories", ErrInvalidConfig)
	}
	return c.Weights.Validate()
}

// Run seeds the population, replays matches against the service, forces a
// full recomputation and verifies what the service publishes.
func Run(ctx context.Context, cfg *Config, sink Sink, log logger.Logger) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	stats := &Stats{}

	log.Info(ctx, "starting seed run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("matches", cfg.Matches),
		logger.Int("workers", cfg.Workers),
	)

	gen := NewGenerator(cfg.Seed, cfg.Categories)
	players, err := gen.Players(cfg.Players)
	if err != nil {
		return nil, err
	}
	refs := make([]model.PlayerRef, len(players))
	rows := make([]model.Statistics, len(players))
	for i, p := range players {
		refs[i], rows[i] = p.Ref, p.Statistics
	}
	if err := sink.Seed(ctx, refs, rows); err != nil {
		return nil, fmt.Errorf("seed population: %w", err)
	}
	stats.PlayersSeeded = len(players)
	log.Info(ctx, "population seeded", logger.Int("players", len(players)))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Healthy(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	matches, err := gen.Matches(players, cfg.Matches, time.Now())
	if err != nil {
		return stats, err
	}
	if err := submitMatches(ctx, client, cfg.Workers, matches, stats, log); err != nil {
		return stats, err
	}

	computed, err := client.RecomputeAll(ctx)
	if err != nil {
		return stats, fmt.Errorf("recompute: %w", err)
	}
	log.Info(ctx, "rankings recomputed", logger.Int("computed", computed))

	if !cfg.SkipVerify {
		global, byCategory, err := readViews(ctx, client, cfg)
		if err != nil {
			return stats, err
		}
		stats.RankingsRead = len(global)
		if err := Verify(players, global, byCategory, cfg.Weights); err != nil {
			return stats, err
		}
		log.Info(ctx, "rankings verified", logger.Int("rankings", len(global)))
	}

	stats.Duration = time.Since(start)
	log.Info(ctx, "seed run completed",
		logger.Int("accepted", stats.MatchesAccepted),
		logger.Int("duplicate", stats.MatchesDuplicate),
		logger.Int("failed", stats.MatchesFailed),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// submitMatches posts matches with bounded concurrency. Rejections such as
// backpressure are counted, not fatal; only cancellation stops the run.
func submitMatches(ctx context.Context, client *Client, workers int, matches []model.MatchCompleted, stats *Stats, log logger.Logger) error {
	var accepted, duplicate, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, m := range matches {
		g.Go(func() error {
			dup, err := client.CompleteMatch(gctx, m)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				failed.Add(1)
				log.Debug(gctx, "match rejected", logger.String("matchID", m.MatchID), logger.Error(err))
			case dup:
				duplicate.Add(1)
			default:
				accepted.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	stats.MatchesAccepted = int(accepted.Load())
	stats.MatchesDuplicate = int(duplicate.Load())
	stats.MatchesFailed = int(failed.Load())
	if err != nil {
		return fmt.Errorf("submit matches: %w", err)
	}
	return nil
}

// readViews loads the global view and every category view concurrently.
func readViews(ctx context.Context, client *Client, cfg *Config) ([]model.RankingWithPlayer, map[model.Category][]model.RankingWithPlayer, error) {
	var (
		global     []model.RankingWithPlayer
		mu         sync.Mutex
		byCategory = make(map[model.Category][]model.RankingWithPlayer)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	g.Go(func() (err error) {
		global, err = client.AllRankings(gctx, "", cfg.PageSize)
		return err
	})
	for _, c := range cfg.Categories.All() {
		g.Go(func() error {
			view, err := client.AllRankings(gctx, c.String(), cfg.PageSize)
			if err != nil {
				return err
			}
			mu.Lock()
			byCategory[c] = view
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("read rankings: %w", err)
	}
	return global, byCategory, nil
}
