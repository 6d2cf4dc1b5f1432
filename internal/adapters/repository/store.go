// Package repository defines the ranking store contract and its in-memory
// implementations of the ranking store, statistics source and player catalog.
package repository

import (
	"context"

	"github.com/okian/rankings/internal/domain/model"
)

// Store persists one Ranking per player.
//
// Upsert replaces a player's row atomically: readers observe either the old
// or the new row, never a mix. UpsertAll applies a whole batch atomically.
// Stale rows are stored and returned by Get and All but never listed or
// counted, so every view stays dense.
type Store interface {
	// Get returns the ranking of a player or an ErrNotFound-kinded error.
	Get(ctx context.Context, playerID string) (model.Ranking, error)
	// List returns one page of the view described by q, stale rows excluded.
	List(ctx context.Context, q model.Query) ([]model.Ranking, error)
	// Count returns the number of rows matching f, stale rows excluded.
	Count(ctx context.Context, f model.Filter) (int, error)
	// All returns every stored ranking, stale ones included, in no particular
	// order.
	All(ctx context.Context) ([]model.Ranking, error)
	Upsert(ctx context.Context, r model.Ranking) error
	UpsertAll(ctx context.Context, rs []model.Ranking) error
	// Delete removes a player's ranking. Recomputation never calls it.
	Delete(ctx context.Context, playerID string) error
}
