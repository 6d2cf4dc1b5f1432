// Package app wires the ranking engine to its collaborators: it assembles
// statistics snapshots, runs the ranking computer, persists the results and
// serves paginated, player-joined views of the stored rankings.
package app

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/okian/rankings/internal/adapters/mq/queue"
	"github.com/okian/rankings/internal/adapters/mq/worker"
	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/domain/dedupe"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/ranking"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

// Statistics failure policies.
const (
	PolicyFail = "fail"
	PolicyZero = "zero"
)

// Recompute modes applied to match completed events.
const (
	RecomputeAll     = "all"
	RecomputePlayers = "players"
)

// Service implements the ranking engine operations used by the HTTP API
// and the recompute workers.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	store    repository.Store
	stats    StatisticsSource
	players  PlayerCatalog
	computer *ranking.Computer

	// Policy
	policy          string
	recomputeMode   string
	defaultLimit    int
	maxLimit        int
	joinConcurrency int

	// Pipeline configuration
	workerCount int
	queueSize   int
	dedupeSize  int

	// Pipeline state
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	started bool

	locks    stripedLocks
	group    singleflight.Group
	lastFull atomic.Pointer[ComputeSummary]

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithComputer sets the ranking computer.
func WithComputer(c *ranking.Computer) Option {
	return func(s *Service) {
		if c != nil {
			s.computer = c
		}
	}
}

// WithStatisticsPolicy selects what happens when statistics cannot be read:
// PolicyFail propagates the error, PolicyZero continues with zeroed statistics.
func WithStatisticsPolicy(policy string) Option {
	return func(s *Service) {
		if policy == PolicyFail || policy == PolicyZero {
			s.policy = policy
		}
	}
}

// WithRecomputeMode selects what a match completed event recomputes.
func WithRecomputeMode(mode string) Option {
	return func(s *Service) {
		if mode == RecomputeAll || mode == RecomputePlayers {
			s.recomputeMode = mode
		}
	}
}

// WithListLimits sets the default page size and the largest accepted page size.
func WithListLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if maxLimit > 0 && defaultLimit > 0 && defaultLimit <= maxLimit {
			s.defaultLimit, s.maxLimit = defaultLimit, maxLimit
		}
	}
}

// WithJoinConcurrency bounds concurrent player lookups while listing.
func WithJoinConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.joinConcurrency = n
		}
	}
}

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the match queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many match ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// New constructs a Service over its collaborators.
func New(store repository.Store, stats StatisticsSource, players PlayerCatalog, opts ...Option) *Service {
	s := &Service{
		store:           store,
		stats:           stats,
		players:         players,
		computer:        ranking.New(),
		policy:          PolicyFail,
		recomputeMode:   RecomputeAll,
		defaultLimit:    20,
		maxLimit:        100,
		joinConcurrency: 8,
		workerCount:     runtime.NumCPU(),
		queueSize:       10_000,
		dedupeSize:      100_000,
		logger:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Categories returns the category set rankings are computed over.
func (s *Service) Categories() model.CategorySet { return s.computer.Categories() }

// DefaultLimit returns the page size applied when a caller omits one.
func (s *Service) DefaultLimit() int { return s.defaultLimit }

// MaxLimit returns the largest accepted page size.
func (s *Service) MaxLimit() int { return s.maxLimit }

// Start creates the match pipeline and starts the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s.logger)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("recomputeMode", s.recomputeMode),
		logger.String("statisticsPolicy", s.policy),
	)
	return nil
}

// Stop closes the match queue and waits for queued matches to be processed.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ranking service")
	err := s.pool.Shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "ranking service stopped", logger.Int("processed", int(s.pool.Processed())))
	return err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":          s.started,
		"workerCount":      s.workerCount,
		"queueSize":        s.queueSize,
		"dedupeSize":       s.dedupeSize,
		"recomputeMode":    s.recomputeMode,
		"statisticsPolicy": s.policy,
		"categories":       s.Categories().Count(),
	}

	if n, err := s.store.Count(ctx, model.Filter{}); err == nil {
		stats["totalRankings"] = n
		metrics.UpdateTotalRankings(n)
	}
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if s.deduper != nil {
		stats["dedupeEntries"] = s.deduper.Size()
	}
	if s.pool != nil {
		stats["matchesProcessed"] = s.pool.Processed()
	}
	if last := s.lastFull.Load(); last != nil {
		stats["lastComputeAll"] = last
	}
	return stats
}
