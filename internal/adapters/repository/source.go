package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
)

// MemorySource serves statistics and player identities from memory. It is
// the statistics source and player catalog used by the memory driver and by
// tests.
type MemorySource struct {
	mu      sync.RWMutex
	stats   map[string]model.Statistics
	players map[string]model.PlayerRef
}

// NewMemorySource constructs an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		stats:   make(map[string]model.Statistics),
		players: make(map[string]model.PlayerRef),
	}
}

// PutStatistics stores or replaces the statistics of a player.
func (m *MemorySource) PutStatistics(st model.Statistics) {
	m.mu.Lock()
	m.stats[st.PlayerID] = st
	m.mu.Unlock()
}

// PutPlayer stores or replaces a player.
func (m *MemorySource) PutPlayer(p model.PlayerRef) {
	m.mu.Lock()
	m.players[p.ID] = p
	m.mu.Unlock()
}

// RemovePlayer deletes a player from the catalog, leaving its statistics.
func (m *MemorySource) RemovePlayer(id string) {
	m.mu.Lock()
	delete(m.players, id)
	m.mu.Unlock()
}

// GetStatistics returns the statistics of one player.
func (m *MemorySource) GetStatistics(ctx context.Context, playerID string) (model.Statistics, error) {
	const op = "repository.MemorySource.GetStatistics"
	if err := ctx.Err(); err != nil {
		return model.Statistics{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.stats[playerID]
	if !ok {
		return model.Statistics{}, errs.WrapKind(op, errs.ErrNotFound, ErrStatisticsNotFound)
	}
	return st, nil
}

// AllStatistics returns every statistics row ordered by player id.
func (m *MemorySource) AllStatistics(ctx context.Context) ([]model.Statistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.WrapKind("repository.MemorySource.AllStatistics", errs.ErrUnexpected, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Statistics, 0, len(m.stats))
	for _, st := range m.stats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

// GetPlayer returns one player.
func (m *MemorySource) GetPlayer(ctx context.Context, id string) (model.PlayerRef, error) {
	const op = "repository.MemorySource.GetPlayer"
	if err := ctx.Err(); err != nil {
		return model.PlayerRef{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return model.PlayerRef{}, errs.WrapKind(op, errs.ErrNotFound, ErrPlayerNotFound)
	}
	return p, nil
}

// AllPlayers returns every player ordered by id.
func (m *MemorySource) AllPlayers(ctx context.Context) ([]model.PlayerRef, error) {
	return m.listPlayers(ctx, nil)
}

// PlayersByCategory returns the players of one category ordered by id.
func (m *MemorySource) PlayersByCategory(ctx context.Context, c model.Category) ([]model.PlayerRef, error) {
	return m.listPlayers(ctx, &c)
}

func (m *MemorySource) listPlayers(ctx context.Context, c *model.Category) ([]model.PlayerRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.WrapKind("repository.MemorySource.players", errs.ErrUnexpected, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.PlayerRef, 0, len(m.players))
	for _, p := range m.players {
		if c == nil || p.Category == *c {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
