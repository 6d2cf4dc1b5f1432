package app

import (
	"context"

	"github.com/okian/rankings/internal/domain/model"
)

// StatisticsSource reads accumulated player statistics. A missing row is
// reported with an errs.ErrNotFound kind.
type StatisticsSource interface {
	GetStatistics(ctx context.Context, playerID string) (model.Statistics, error)
	AllStatistics(ctx context.Context) ([]model.Statistics, error)
}

// PlayerCatalog resolves player identities. A missing player is reported
// with an errs.ErrNotFound kind.
type PlayerCatalog interface {
	GetPlayer(ctx context.Context, id string) (model.PlayerRef, error)
	AllPlayers(ctx context.Context) ([]model.PlayerRef, error)
	PlayersByCategory(ctx context.Context, c model.Category) ([]model.PlayerRef, error)
}

// SnapshotSource is implemented by backends that serve statistics and
// players from one consistent read.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]model.Statistics, []model.PlayerRef, error)
}
