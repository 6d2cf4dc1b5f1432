package app

import (
	"context"
	"errors"
	"strings"

	"github.com/okian/rankings/internal/adapters/mq/queue"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

// MatchCompleted accepts a match completed event for asynchronous
// recomputation. duplicate is true when the match id was already accepted;
// nothing is queued in that case. A full queue fails with ErrBackpressure and
// leaves the match id unrecorded so the sender can retry.
func (s *Service) MatchCompleted(ctx context.Context, e model.MatchCompleted) (duplicate bool, err error) {
	const op = "app.MatchCompleted"

	e.MatchID = strings.TrimSpace(e.MatchID)
	if e.MatchID == "" {
		return false, errs.Invalidf(op, "match id is required")
	}
	for _, id := range e.PlayerIDs {
		if strings.TrimSpace(id) == "" {
			return false, errs.Invalidf(op, "player ids must not be empty")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return false, errs.WrapKind(op, errs.ErrUnexpected, ErrNotStarted)
	}

	if s.deduper.SeenAndRecord(ctx, e.MatchID) {
		metrics.RecordMatchDuplicate()
		s.logger.Debug(ctx, "duplicate match ignored", logger.String("matchID", e.MatchID))
		return true, nil
	}

	if err := s.queue.Enqueue(ctx, e); err != nil {
		s.deduper.Unrecord(ctx, e.MatchID)
		switch {
		case errors.Is(err, queue.ErrFull):
			return false, errs.WrapKind(op, errs.ErrUnexpected, ErrBackpressure)
		case errors.Is(err, queue.ErrClosed):
			return false, errs.WrapKind(op, errs.ErrUnexpected, ErrNotStarted)
		default:
			return false, errs.WrapKind(op, errs.ErrUnexpected, err)
		}
	}

	metrics.RecordMatchAccepted()
	s.logger.Debug(ctx, "match accepted",
		logger.String("matchID", e.MatchID),
		logger.Int("players", len(e.PlayerIDs)),
	)
	return false, nil
}
