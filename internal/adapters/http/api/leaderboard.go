package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/rankings/internal/app"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/pkg/logger"
)

// RankingsDependencies defines the interface for ranking view operations.
type RankingsDependencies interface {
	List(ctx context.Context, req app.ListRequest) (app.ListResult, error)
	ComputeAll(ctx context.Context) (app.ComputeSummary, error)
	DefaultLimit() int
}

// RankingsHandler serves the paginated ranking views.
type RankingsHandler struct {
	deps   RankingsDependencies
	logger logger.Logger
}

// NewRankingsHandler creates a new rankings handler.
func NewRankingsHandler(deps RankingsDependencies, log logger.Logger) *RankingsHandler {
	return &RankingsHandler{deps: deps, logger: log}
}

// HandleList handles GET /rankings?category=&sort=&order=&limit=&offset=.
func (h *RankingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_rankings"
	q := r.URL.Query()

	req := app.ListRequest{
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Order:    q.Get("order"),
		Limit:    h.deps.DefaultLimit(),
	}
	var err error
	if req.Limit, err = intParam(op, q.Get("limit"), "limit", req.Limit); err != nil {
		writeError(w, err)
		return
	}
	if req.Offset, err = intParam(op, q.Get("offset"), "offset", 0); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.deps.List(r.Context(), req)
	if err != nil {
		logFailure(r.Context(), h.logger, "list rankings failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRecomputeAll handles POST /rankings/recompute.
func (h *RankingsHandler) HandleRecomputeAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.ComputeAll(r.Context())
	if err != nil {
		logFailure(r.Context(), h.logger, "recompute failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// intParam parses an optional integer query parameter.
func intParam(op, raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.WrapKind(op, errs.ErrInvalidArgument, fmt.Errorf("%w: %s=%q", ErrQueryParam, name, raw))
	}
	return n, nil
}
