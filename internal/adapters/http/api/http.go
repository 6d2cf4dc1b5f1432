// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/rankings/internal/app"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	RankingsDependencies
	RankDependencies
	MatchesDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	matchesHandler  *MatchesHandler
	rankingsHandler *RankingsHandler
	rankHandler     *RankHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		matchesHandler:  NewMatchesHandler(deps, log),
		rankingsHandler: NewRankingsHandler(deps, log),
		rankHandler:     NewRankHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /rankings", MetricsMiddleware(s.rankingsHandler.HandleList, "rankings"))
	mux.HandleFunc("POST /rankings/recompute", MetricsMiddleware(s.rankingsHandler.HandleRecomputeAll, "rankings_recompute"))
	mux.HandleFunc("GET /rankings/{playerId}", MetricsMiddleware(s.rankHandler.HandleGet, "ranking"))
	mux.HandleFunc("DELETE /rankings/{playerId}", MetricsMiddleware(s.rankHandler.HandleDelete, "ranking"))
	mux.HandleFunc("POST /rankings/{playerId}/recompute", MetricsMiddleware(s.rankHandler.HandleRecompute, "ranking_recompute"))

	mux.HandleFunc("POST /matches/completed", MetricsMiddleware(s.matchesHandler.HandleMatchCompleted, "matches"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code through its kind.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, app.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errs.IsInvalid(err):
		return http.StatusBadRequest, "invalid_argument"
	case errs.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// logFailure reports server side failures; client errors are not logged.
func logFailure(ctx context.Context, log logger.Logger, msg string, err error) {
	if status, _ := statusOf(err); status >= http.StatusInternalServerError {
		log.Error(ctx, msg, logger.Error(err))
	}
}
