package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
)

const maxMatchBody = 1 << 20

// MatchesDependencies defines the interface for match intake.
type MatchesDependencies interface {
	MatchCompleted(ctx context.Context, e model.MatchCompleted) (duplicate bool, err error)
}

// MatchesHandler accepts match completed notifications.
type MatchesHandler struct {
	deps   MatchesDependencies
	logger logger.Logger
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps MatchesDependencies, log logger.Logger) *MatchesHandler {
	return &MatchesHandler{deps: deps, logger: log}
}

// matchRequest mirrors the OpenAPI schema for POST /matches/completed.
type matchRequest struct {
	MatchID     string   `json:"match_id"`
	PlayerIDs   []string `json:"player_ids"`
	CompletedAt string   `json:"completed_at"`
}

func (m matchRequest) event() (model.MatchCompleted, error) {
	e := model.MatchCompleted{MatchID: strings.TrimSpace(m.MatchID), PlayerIDs: m.PlayerIDs}
	if e.MatchID == "" {
		return e, errors.New("missing match_id")
	}
	if strings.TrimSpace(m.CompletedAt) != "" {
		ts, err := time.Parse(time.RFC3339, m.CompletedAt)
		if err != nil {
			return e, errors.New("invalid completed_at; must be RFC3339")
		}
		e.CompletedAt = ts.UTC()
	}
	return e, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandleMatchCompleted handles POST /matches/completed requests.
func (h *MatchesHandler) HandleMatchCompleted(w http.ResponseWriter, r *http.Request) {
	const op = "api.match_completed"

	var req matchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMatchBody)).Decode(&req); err != nil {
		writeError(w, errs.WrapKind(op, errs.ErrInvalidArgument, errors.Join(ErrBadRequest, err)))
		return
	}
	e, err := req.event()
	if err != nil {
		writeError(w, errs.WrapKind(op, errs.ErrInvalidArgument, err))
		return
	}

	duplicate, err := h.deps.MatchCompleted(r.Context(), e)
	if err != nil {
		logFailure(r.Context(), h.logger, "match intake failed", err)
		writeError(w, err)
		return
	}
	if duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
