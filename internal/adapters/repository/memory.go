package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore is an in-memory Store. Rows live in a map keyed by player id;
// a treap over (score, player id) serves score-ordered pages without sorting.
// Stale rows are kept in the map only, so the treap and the category counts
// cover exactly the ranked rows.
type MemoryStore struct {
	mu         sync.RWMutex
	root       *node
	byID       map[string]model.Ranking
	categories map[model.Category]int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]model.Ranking),
		categories: make(map[model.Category]int),
	}
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backendMemory, op, float64(time.Since(start).Microseconds())/1000, err)
}

// Get returns the ranking of a player.
func (s *MemoryStore) Get(ctx context.Context, playerID string) (r model.Ranking, err error) {
	const op = "repository.MemoryStore.Get"
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	s.mu.RLock()
	r, ok := s.byID[playerID]
	s.mu.RUnlock()
	if !ok {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrNotFound, ErrRankingNotFound)
	}
	return r, nil
}

// List returns one page of rankings.
func (s *MemoryStore) List(ctx context.Context, q model.Query) (out []model.Ranking, err error) {
	const op = "repository.MemoryStore.List"
	defer func(start time.Time) { observe("list", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Sort == model.SortScore {
		return s.listByScore(q), nil
	}

	rows := make([]model.Ranking, 0, len(s.byID))
	for _, r := range s.byID {
		if q.Match(r) {
			rows = append(rows, r)
		}
	}
	model.SortRankings(rows, q)
	page := model.Page(rows, q.Offset, q.Limit)
	return append([]model.Ranking(nil), page...), nil
}

// listByScore walks the score index; descending is the natural leaderboard order.
func (s *MemoryStore) listByScore(q model.Query) []model.Ranking {
	out := make([]model.Ranking, 0, max(q.Limit, 0))
	skip := max(q.Offset, 0)
	if q.Category == nil {
		walkFrom(s.root, !q.Desc, skip, func(id string) bool {
			out = append(out, s.byID[id])
			return q.Limit <= 0 || len(out) < q.Limit
		})
		return out
	}
	walk(s.root, !q.Desc, func(id string) bool {
		r := s.byID[id]
		if !q.Match(r) {
			return true
		}
		if skip > 0 {
			skip--
			return true
		}
		out = append(out, r)
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out
}

// Count returns the number of ranked rows in a view.
func (s *MemoryStore) Count(ctx context.Context, f model.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, errs.WrapKind("repository.MemoryStore.Count", errs.ErrUnexpected, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if f.Category == nil {
		return nsize(s.root), nil
	}
	return s.categories[*f.Category], nil
}

// All returns every ranking, stale rows included.
func (s *MemoryStore) All(ctx context.Context) ([]model.Ranking, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.WrapKind("repository.MemoryStore.All", errs.ErrUnexpected, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Ranking, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out, nil
}

// Upsert replaces the ranking of one player.
func (s *MemoryStore) Upsert(ctx context.Context, r model.Ranking) (err error) {
	const op = "repository.MemoryStore.Upsert"
	defer func(start time.Time) { observe("upsert", start, err) }(time.Now())

	if r.PlayerID == "" {
		return errs.WrapKind(op, errs.ErrInvalidArgument, ErrInvalidRanking)
	}
	if err = ctx.Err(); err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	s.mu.Lock()
	s.put(r)
	n := nsize(s.root)
	s.mu.Unlock()

	metrics.UpdateTotalRankings(n)
	return nil
}

// UpsertAll replaces a batch of rankings under a single lock.
func (s *MemoryStore) UpsertAll(ctx context.Context, rs []model.Ranking) (err error) {
	const op = "repository.MemoryStore.UpsertAll"
	defer func(start time.Time) { observe("upsert_all", start, err) }(time.Now())

	for _, r := range rs {
		if r.PlayerID == "" {
			return errs.WrapKind(op, errs.ErrInvalidArgument, ErrInvalidRanking)
		}
	}
	if err = ctx.Err(); err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	s.mu.Lock()
	for _, r := range rs {
		s.put(r)
	}
	n := nsize(s.root)
	s.mu.Unlock()

	metrics.UpdateTotalRankings(n)
	return nil
}

// Delete removes the ranking of one player.
func (s *MemoryStore) Delete(ctx context.Context, playerID string) (err error) {
	const op = "repository.MemoryStore.Delete"
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	if err = ctx.Err(); err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	s.mu.Lock()
	old, ok := s.byID[playerID]
	if ok {
		s.remove(old)
	}
	n := nsize(s.root)
	s.mu.Unlock()

	if !ok {
		return errs.WrapKind(op, errs.ErrNotFound, ErrRankingNotFound)
	}
	metrics.UpdateTotalRankings(n)
	return nil
}

// put assumes the write lock is held.
func (s *MemoryStore) put(r model.Ranking) {
	if old, ok := s.byID[r.PlayerID]; ok {
		s.remove(old)
	}
	s.byID[r.PlayerID] = r
	if r.Stale {
		return
	}
	s.categories[r.Category]++
	s.root = insert(s.root, r.PlayerID, model.ScoreKey(r.Score))
}

// remove assumes the write lock is held.
func (s *MemoryStore) remove(r model.Ranking) {
	delete(s.byID, r.PlayerID)
	if r.Stale {
		return
	}
	s.root = deleteNode(s.root, r.PlayerID, model.ScoreKey(r.Score))
	s.categories[r.Category]--
	if s.categories[r.Category] <= 0 {
		delete(s.categories, r.Category)
	}
}
