package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
)

// RankDependencies defines the interface for single ranking operations.
type RankDependencies interface {
	Rank(ctx context.Context, playerID string) (model.RankingWithPlayer, error)
	Delete(ctx context.Context, playerID string) error
	ComputeOne(ctx context.Context, playerID string) (model.Ranking, error)
}

// RankHandler handles requests addressed to one player's ranking.
type RankHandler struct {
	deps   RankDependencies
	logger logger.Logger
}

// NewRankHandler creates a new rank handler.
func NewRankHandler(deps RankDependencies, log logger.Logger) *RankHandler {
	return &RankHandler{deps: deps, logger: log}
}

func playerID(op string, r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("playerId"))
	if id == "" {
		return "", errs.WrapKind(op, errs.ErrInvalidArgument, ErrMissingPath)
	}
	return id, nil
}

// HandleGet handles GET /rankings/{playerId}.
func (h *RankHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := playerID("api.get_ranking", r)
	if err != nil {
		writeError(w, err)
		return
	}
	ranking, err := h.deps.Rank(r.Context(), id)
	if err != nil {
		logFailure(r.Context(), h.logger, "get ranking failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

// HandleDelete handles DELETE /rankings/{playerId}.
func (h *RankHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := playerID("api.delete_ranking", r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Delete(r.Context(), id); err != nil {
		logFailure(r.Context(), h.logger, "delete ranking failed", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecompute handles POST /rankings/{playerId}/recompute.
func (h *RankHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	id, err := playerID("api.recompute_ranking", r)
	if err != nil {
		writeError(w, err)
		return
	}
	ranking, err := h.deps.ComputeOne(r.Context(), id)
	if err != nil {
		logFailure(r.Context(), h.logger, "recompute ranking failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}
