// Package model contains domain models passed between layers.
package model

import "time"

// MatchCompleted announces that a match finished and its participants'
// statistics were updated upstream. It triggers a ranking recomputation.
type MatchCompleted struct {
	MatchID     string    // unique id for idempotency
	PlayerIDs   []string  // participants whose statistics changed
	CompletedAt time.Time // when the match finished
}
