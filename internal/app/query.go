package app

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

// ListRequest is an unvalidated ranking view request. Empty strings select
// the defaults: the global view, sorted by the view's position ascending.
type ListRequest struct {
	Category string
	Sort     string
	Order    string
	Limit    int
	Offset   int
}

// Pagination describes the page returned by List.
type Pagination struct {
	Total    int  `json:"total"`
	Limit    int  `json:"limit"`
	Offset   int  `json:"offset"`
	Returned int  `json:"returned"`
	HasMore  bool `json:"has_more"`
}

// ListResult is one page of rankings joined with player identities.
type ListResult struct {
	Rankings   []model.RankingWithPlayer `json:"rankings"`
	Pagination Pagination                `json:"pagination"`
}

// Query validates req against the service limits and category set.
func (s *Service) Query(req ListRequest) (model.Query, error) {
	const op = "app.Query"

	var q model.Query
	if raw := strings.TrimSpace(req.Category); raw != "" {
		c, err := s.Categories().Parse(raw)
		if err != nil {
			return model.Query{}, errs.Wrap(op, err)
		}
		q.Category = &c
	}

	switch raw := strings.TrimSpace(req.Sort); {
	case raw == "" && q.Category != nil:
		q.Sort = model.SortCategoryPosition
	case raw == "":
		q.Sort = model.SortGlobalPosition
	default:
		field, ok := model.ParseSortField(raw)
		if !ok {
			return model.Query{}, errs.Invalidf(op, "unknown sort field %q", req.Sort)
		}
		if field == model.SortCategoryPosition && q.Category == nil {
			return model.Query{}, errs.Invalidf(op, "sort by categoryPosition requires a category filter")
		}
		if field == model.SortGlobalPosition && q.Category != nil {
			return model.Query{}, errs.Invalidf(op, "sort by globalPosition is not available in a category view")
		}
		q.Sort = field
	}

	switch strings.ToLower(strings.TrimSpace(req.Order)) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return model.Query{}, errs.Invalidf(op, "unknown order %q (want asc or desc)", req.Order)
	}

	if req.Limit <= 0 || req.Limit > s.maxLimit {
		return model.Query{}, errs.Invalidf(op, "limit must be between 1 and %d, got %d", s.maxLimit, req.Limit)
	}
	if req.Offset < 0 {
		return model.Query{}, errs.Invalidf(op, "offset must not be negative, got %d", req.Offset)
	}
	q.Limit, q.Offset = req.Limit, req.Offset
	return q, nil
}

// List returns one page of a ranking view with every row joined to its
// player. Rows whose player cannot be resolved are kept with PlayerMissing.
func (s *Service) List(ctx context.Context, req ListRequest) (ListResult, error) {
	const op = "app.List"
	start := time.Now()
	defer func() {
		metrics.RecordListLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q, err := s.Query(req)
	if err != nil {
		metrics.RecordListRequest("invalid")
		return ListResult{}, err
	}

	var (
		total int
		page  []model.Ranking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.store.Count(gctx, q.Filter)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = s.store.List(gctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		metrics.RecordListRequest("error")
		return ListResult{}, errs.Wrap(op, err)
	}

	rows := s.join(ctx, page, q.Category)
	metrics.RecordListRequest("ok")
	return ListResult{
		Rankings: rows,
		Pagination: Pagination{
			Total:    total,
			Limit:    q.Limit,
			Offset:   q.Offset,
			Returned: len(rows),
			HasMore:  q.Offset+len(rows) < total,
		},
	}, nil
}

// Rank returns the stored ranking of one player joined with the player.
func (s *Service) Rank(ctx context.Context, playerID string) (model.RankingWithPlayer, error) {
	const op = "app.Rank"
	if strings.TrimSpace(playerID) == "" {
		return model.RankingWithPlayer{}, errs.Invalidf(op, "player id is required")
	}
	r, err := s.store.Get(ctx, playerID)
	if err != nil {
		return model.RankingWithPlayer{}, errs.Wrap(op, err)
	}
	return s.join(ctx, []model.Ranking{r}, nil)[0], nil
}

// Delete removes the stored ranking of a player.
func (s *Service) Delete(ctx context.Context, playerID string) error {
	const op = "app.Delete"
	if strings.TrimSpace(playerID) == "" {
		return errs.Invalidf(op, "player id is required")
	}

	unlock := s.locks.lock(playerID)
	defer unlock()

	if err := s.store.Delete(ctx, playerID); err != nil {
		return errs.Wrap(op, err)
	}
	s.logger.Info(ctx, "ranking deleted", logger.String("playerID", playerID))
	return nil
}

// join attaches player identities to rows. A category view loads the
// category's players in one read; rows it does not cover are resolved one by
// one with bounded concurrency.
func (s *Service) join(ctx context.Context, page []model.Ranking, category *model.Category) []model.RankingWithPlayer {
	out := make([]model.RankingWithPlayer, len(page))
	for i, r := range page {
		out[i].Ranking = r
	}

	if category != nil && len(page) > 0 {
		players, err := s.players.PlayersByCategory(ctx, *category)
		if err != nil {
			s.logger.Warn(ctx, "category players unavailable, resolving rows one by one",
				logger.String("category", category.String()),
				logger.Error(err),
			)
		}
		byID := make(map[string]model.PlayerRef, len(players))
		for _, p := range players {
			byID[p.ID] = p
		}
		for i := range out {
			if p, ok := byID[out[i].PlayerID]; ok {
				out[i].Player = &p
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.joinConcurrency)
	for i := range out {
		if out[i].Player != nil {
			continue
		}
		g.Go(func() error {
			p, err := s.players.GetPlayer(gctx, out[i].PlayerID)
			if err != nil {
				out[i].PlayerMissing = true
				s.missingPlayer(ctx, out[i].PlayerID, err)
				return nil
			}
			out[i].Player = &p
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) missingPlayer(ctx context.Context, playerID string, err error) {
	if errs.IsNotFound(err) {
		s.logger.Warn(ctx, "ranking without player", logger.String("playerID", playerID))
		metrics.RecordDataIntegrity("ranking_without_player")
		return
	}
	s.logger.Warn(ctx, "player lookup failed",
		logger.String("playerID", playerID),
		logger.Error(err),
	)
	metrics.RecordErrorByComponent("join", errs.KindOf(err).Error())
}
