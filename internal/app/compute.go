package app

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/ranking"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

const lockStripes = 64

// stripedLocks serializes recomputation per player without a map of mutexes.
type stripedLocks [lockStripes]sync.Mutex

func (l *stripedLocks) lock(playerID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(playerID))
	m := &l[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// ComputeSummary reports the outcome of a full recomputation.
type ComputeSummary struct {
	Computed     int               `json:"computed"`
	Stale        int               `json:"stale"`
	Skipped      []ranking.Skipped `json:"skipped,omitempty"`
	CalculatedAt time.Time         `json:"calculated_at"`
	Duration     time.Duration     `json:"duration_ns"`
}

// ComputeOne recomputes and stores the ranking of one player. A player
// without statistics fails with ErrNotFound and nothing is written.
func (s *Service) ComputeOne(ctx context.Context, playerID string) (model.Ranking, error) {
	const op = "app.ComputeOne"
	start := time.Now()

	r, err := s.computeOne(ctx, playerID)
	if err != nil {
		metrics.RecordComputeError("one", errs.KindOf(err).Error())
		return model.Ranking{}, errs.Wrap(op, err)
	}

	metrics.RecordRankingsComputed("one", 1)
	metrics.RecordComputeDuration("one", float64(time.Since(start).Microseconds())/1000)
	s.logger.Debug(ctx, "ranking computed",
		logger.String("playerID", r.PlayerID),
		logger.Float64("score", r.Score),
		logger.Int("globalPosition", r.GlobalPosition),
		logger.Int("categoryPosition", r.CategoryPosition),
		logger.Int("positionChange", r.PositionChange),
	)
	return r, nil
}

func (s *Service) computeOne(ctx context.Context, playerID string) (model.Ranking, error) {
	const op = "app.computeOne"
	if playerID == "" {
		return model.Ranking{}, errs.Invalidf(op, "player id is required")
	}

	unlock := s.locks.lock(playerID)
	defer unlock()

	own, err := s.stats.GetStatistics(ctx, playerID)
	switch {
	case err == nil:
	case errs.IsNotFound(err):
		return model.Ranking{}, err
	case s.policy == PolicyZero:
		s.logger.Warn(ctx, "statistics unavailable, ranking with zeros",
			logger.String("playerID", playerID),
			logger.Error(err),
		)
		metrics.RecordStatisticsZeroed("single")
		own = model.ZeroStatistics(playerID)
	default:
		return model.Ranking{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	if _, err := s.players.GetPlayer(ctx, playerID); err != nil {
		if errs.IsNotFound(err) {
			return model.Ranking{}, err
		}
		return model.Ranking{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	snap, previous, err := s.snapshot(ctx)
	if err != nil {
		return model.Ranking{}, err
	}
	snap.Statistics = withStatistics(snap.Statistics, own)

	var prev *model.Ranking
	if p, ok := previous[playerID]; ok {
		prev = &p
	}
	r, err := s.computer.ComputeOne(ctx, playerID, snap, prev)
	if err != nil {
		return model.Ranking{}, err
	}

	if err := ctx.Err(); err != nil {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	if err := s.store.Upsert(ctx, r); err != nil {
		return model.Ranking{}, err
	}
	return r, nil
}

// withStatistics makes sure the single-read row is the one ranked, replacing
// a stale or zeroed bulk row of the same player.
func withStatistics(all []model.Statistics, own model.Statistics) []model.Statistics {
	for i := range all {
		if all[i].PlayerID == own.PlayerID {
			if all[i].Zeroed || !own.Zeroed {
				all[i] = own
			}
			return all
		}
	}
	return append(all, own)
}

// ComputeAll recomputes every ranking and stores the batch. Concurrent
// callers share one computation; a caller whose ctx ends stops waiting while
// the computation itself completes and is stored.
func (s *Service) ComputeAll(ctx context.Context) (ComputeSummary, error) {
	const op = "app.ComputeAll"

	ch := s.group.DoChan("all", func() (any, error) {
		return s.computeAll(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ComputeSummary{}, errs.WrapKind(op, errs.ErrUnexpected, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return ComputeSummary{}, errs.Wrap(op, res.Err)
		}
		return res.Val.(ComputeSummary), nil
	}
}

func (s *Service) computeAll(ctx context.Context) (ComputeSummary, error) {
	start := time.Now()

	summary, err := s.runComputeAll(ctx)
	if err != nil {
		metrics.RecordComputeError("all", errs.KindOf(err).Error())
		s.logger.Error(ctx, "full recomputation failed", logger.Error(err))
		return ComputeSummary{}, err
	}
	summary.Duration = time.Since(start)

	metrics.RecordRankingsComputed("all", summary.Computed)
	metrics.RecordComputeDuration("all", float64(summary.Duration.Microseconds())/1000)
	s.lastFull.Store(&summary)

	s.logger.Info(ctx, "rankings recomputed",
		logger.Int("computed", summary.Computed),
		logger.Int("stale", summary.Stale),
		logger.Int("skipped", len(summary.Skipped)),
		logger.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Service) runComputeAll(ctx context.Context) (ComputeSummary, error) {
	snap, previous, err := s.snapshot(ctx)
	if err != nil {
		return ComputeSummary{}, err
	}

	batch, err := s.computer.ComputeAll(ctx, snap, previous)
	if err != nil {
		return ComputeSummary{}, err
	}
	rows := batch.Rankings
	if len(batch.Stale) > 0 {
		rows = append(rows[:len(rows):len(rows)], batch.Stale...)
	}
	if err := s.store.UpsertAll(ctx, rows); err != nil {
		return ComputeSummary{}, err
	}
	for _, r := range batch.Stale {
		s.logger.Warn(ctx, "player left the source data; ranking flagged stale",
			logger.String("playerID", r.PlayerID),
			logger.Int("lastGlobalPosition", r.GlobalPosition),
		)
		metrics.RecordDataIntegrity(ranking.ReasonStaleRanking)
	}

	metrics.UpdatePopulationSize(batch.Standings.Len())
	for _, c := range s.computer.Categories().All() {
		metrics.UpdateCategoryPopulation(c.String(), batch.Standings.CategorySize(c))
	}

	return ComputeSummary{
		Computed:     len(batch.Rankings),
		Stale:        len(batch.Stale),
		Skipped:      batch.Skipped,
		CalculatedAt: batch.CalculatedAt,
	}, nil
}

// snapshot reads statistics, players and stored rankings concurrently. Under
// PolicyZero a failed bulk statistics read yields an empty statistics list.
func (s *Service) snapshot(ctx context.Context) (ranking.Snapshot, map[string]model.Ranking, error) {
	const op = "app.snapshot"

	var (
		snap   ranking.Snapshot
		stored []model.Ranking
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		stored, err = s.store.All(gctx)
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	})
	g.Go(func() error {
		stats, players, err := s.readSources(gctx)
		snap.Statistics, snap.Players = stats, players
		return err
	})

	if err := g.Wait(); err != nil {
		return ranking.Snapshot{}, nil, err
	}

	previous := make(map[string]model.Ranking, len(stored))
	for _, r := range stored {
		previous[r.PlayerID] = r
	}
	return snap, previous, nil
}

func (s *Service) readSources(ctx context.Context) ([]model.Statistics, []model.PlayerRef, error) {
	const op = "app.readSources"

	if src, ok := s.stats.(SnapshotSource); ok && any(s.stats) == any(s.players) {
		stats, players, err := src.Snapshot(ctx)
		if err == nil {
			return stats, players, nil
		}
		if ctx.Err() != nil {
			return nil, nil, errs.WrapKind(op, errs.ErrUnexpected, err)
		}
		s.logger.Warn(ctx, "consistent snapshot failed, reading sources separately", logger.Error(err))
	}

	var (
		stats   []model.Statistics
		players []model.PlayerRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.stats.AllStatistics(gctx)
		if err == nil {
			return nil
		}
		if s.policy == PolicyZero && !errors.Is(err, context.Canceled) {
			s.logger.Warn(gctx, "statistics unavailable, continuing without them", logger.Error(err))
			metrics.RecordStatisticsZeroed("bulk")
			stats = nil
			return nil
		}
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	})
	g.Go(func() error {
		var err error
		players, err = s.players.AllPlayers(gctx)
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return stats, players, nil
}

// Recompute refreshes rankings after a completed match. In RecomputeAll mode
// the whole leaderboard is recomputed; in RecomputePlayers mode only the
// participants are, and participants without statistics are skipped.
func (s *Service) Recompute(ctx context.Context, e model.MatchCompleted) error {
	if s.recomputeMode == RecomputeAll {
		_, err := s.ComputeAll(ctx)
		return err
	}

	var failed []error
	for _, id := range e.PlayerIDs {
		if _, err := s.ComputeOne(ctx, id); err != nil {
			if errs.IsNotFound(err) {
				s.logger.Warn(ctx, "participant not rankable",
					logger.String("matchID", e.MatchID),
					logger.String("playerID", id),
					logger.Error(err),
				)
				continue
			}
			failed = append(failed, err)
		}
	}
	return errors.Join(failed...)
}
