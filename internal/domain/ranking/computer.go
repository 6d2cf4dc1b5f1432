// Package ranking turns statistics snapshots into dense global and
// per-category leaderboards.
//
// The computer is pure: it reads only the snapshot it is given and never
// touches storage, so an abandoned computation has no side effects.
package ranking

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/scoring"
	"github.com/okian/rankings/pkg/logger"
	"github.com/okian/rankings/pkg/metrics"
)

// Snapshot is the consistent input of one computation pass.
type Snapshot struct {
	Statistics []model.Statistics
	Players    []model.PlayerRef
}

// Batch is the output of ComputeAll.
type Batch struct {
	// Rankings holds one row per ranked player ordered by global position.
	Rankings []model.Ranking
	// Stale holds previously stored rows whose player left the snapshot,
	// flagged stale. Rows that were already stale are not repeated.
	Stale        []model.Ranking
	Skipped      []Skipped
	Standings    *Standings
	CalculatedAt time.Time
}

// Computer ranks players from statistics snapshots.
type Computer struct {
	weights    scoring.Weights
	categories model.CategorySet
	now        func() time.Time
	newID      func() string
	logger     logger.Logger
}

// Option applies a configuration option to the Computer.
type Option func(*Computer)

// WithWeights overrides the score weights. Weights failing Validate are
// ignored; configuration loading rejects them first.
func WithWeights(w scoring.Weights) Option {
	return func(c *Computer) {
		if w.Validate() == nil {
			c.weights = w
		}
	}
}

// WithCategories sets the category set used to validate player tiers.
func WithCategories(set model.CategorySet) Option {
	return func(c *Computer) {
		if set.Count() > 0 {
			c.categories = set
		}
	}
}

// WithClock sets the time source for calculation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Computer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator sets the generator for new ranking ids.
func WithIDGenerator(gen func() string) Option {
	return func(c *Computer) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithLogger sets the logger for data integrity warnings.
func WithLogger(l logger.Logger) Option {
	return func(c *Computer) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Computer with the default policy.
func New(opts ...Option) *Computer {
	c := &Computer{
		weights:    scoring.DefaultWeights(),
		categories: model.DefaultCategories(),
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Categories returns the configured category set.
func (c *Computer) Categories() model.CategorySet { return c.categories }

// Rank builds the standings of a snapshot with a single sort. Statistics rows
// without a catalog entry are skipped and reported as data integrity
// problems; they never fail the pass.
func (c *Computer) Rank(ctx context.Context, snap Snapshot) (*Standings, error) {
	const op = "ranking.Rank"
	if err := ctx.Err(); err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	players := make(map[string]model.PlayerRef, len(snap.Players))
	for _, p := range snap.Players {
		if _, dup := players[p.ID]; dup {
			c.integrity(ctx, p.ID, ReasonDuplicatePlayer)
		}
		if cat, ok := c.categories.Normalize(p.Category); !ok {
			c.logger.Warn(ctx, "player category outside configured set; using fallback",
				logger.String("playerID", p.ID),
				logger.Int("category", int(p.Category)),
				logger.String("fallback", cat.String()),
			)
			metrics.RecordDataIntegrity(ReasonCategoryMapped)
			p.Category = cat
		}
		players[p.ID] = p
	}

	// last row wins for duplicated statistics
	byPlayer := make(map[string]int, len(snap.Statistics))
	entries := make([]Entry, 0, len(snap.Statistics))
	var skipped []Skipped
	for _, st := range snap.Statistics {
		p, ok := players[st.PlayerID]
		if !ok {
			c.integrity(ctx, st.PlayerID, ReasonOrphanStatistics)
			skipped = append(skipped, Skipped{PlayerID: st.PlayerID, Reason: ReasonOrphanStatistics})
			continue
		}
		score := c.weights.Score(st)
		e := Entry{Player: p, Statistics: st, Score: score, key: model.ScoreKey(score)}
		if i, dup := byPlayer[st.PlayerID]; dup {
			c.integrity(ctx, st.PlayerID, ReasonDuplicateStatistics)
			entries[i] = e
			continue
		}
		byPlayer[st.PlayerID] = len(entries)
		entries = append(entries, e)
	}

	if err := ctx.Err(); err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}

	s := rank(entries)
	s.skipped = skipped
	return s, nil
}

func (c *Computer) integrity(ctx context.Context, playerID, reason string) {
	c.logger.Warn(ctx, "data integrity problem; row skipped",
		logger.String("playerID", playerID),
		logger.String("reason", reason),
	)
	metrics.RecordDataIntegrity(reason)
}

// ComputeOne ranks a single player against the whole snapshot. It fails with
// ErrNotFound when the player has no statistics row or no catalog entry.
// previous is the player's stored ranking, or nil on first computation.
func (c *Computer) ComputeOne(ctx context.Context, playerID string, snap Snapshot, previous *model.Ranking) (model.Ranking, error) {
	const op = "ranking.ComputeOne"

	if !hasStatistics(snap, playerID) {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrNotFound, errNoStatistics(playerID))
	}
	if !hasPlayer(snap, playerID) {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrNotFound, errNoPlayer(playerID))
	}

	standings, err := c.Rank(ctx, snap)
	if err != nil {
		return model.Ranking{}, errs.Wrap(op, err)
	}
	e, ok := standings.Lookup(playerID)
	if !ok {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrNotFound, errNoPlayer(playerID))
	}
	return c.build(e, previous, c.now().UTC()), nil
}

// ComputeAll ranks every player of the snapshot with one sort pass. previous
// maps player ids to their stored rankings.
func (c *Computer) ComputeAll(ctx context.Context, snap Snapshot, previous map[string]model.Ranking) (*Batch, error) {
	const op = "ranking.ComputeAll"

	standings, err := c.Rank(ctx, snap)
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	now := c.now().UTC()
	out := make([]model.Ranking, 0, standings.Len())
	for _, e := range standings.Entries() {
		var prev *model.Ranking
		if p, ok := previous[e.Player.ID]; ok {
			prev = &p
		}
		out = append(out, c.build(e, prev, now))
	}

	var stale []model.Ranking
	for id, p := range previous {
		if p.Stale {
			continue
		}
		if _, ok := standings.Lookup(id); ok {
			continue
		}
		p.Stale = true
		p.UpdatedAt = now
		stale = append(stale, p)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].PlayerID < stale[j].PlayerID })

	return &Batch{
		Rankings:     out,
		Stale:        stale,
		Skipped:      standings.Skipped(),
		Standings:    standings,
		CalculatedAt: now,
	}, nil
}

// build applies the delta rules: with a previous ranking the id and creation
// time are kept and PositionChange = previous - new; without one the previous
// position is nil and the change is zero.
func (c *Computer) build(e Entry, previous *model.Ranking, now time.Time) model.Ranking {
	r := model.Ranking{
		PlayerID:         e.Player.ID,
		Score:            e.Score,
		GlobalPosition:   e.GlobalPosition,
		CategoryPosition: e.CategoryPosition,
		Category:         e.Player.Category,
		LastCalculated:   now,
		UpdatedAt:        now,
	}
	if previous == nil {
		r.ID = c.newID()
		r.CreatedAt = now
		return r
	}

	r.ID = previous.ID
	if r.ID == "" {
		r.ID = c.newID()
	}
	r.CreatedAt = previous.CreatedAt
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	prevPos := previous.GlobalPosition
	r.PreviousGlobalPosition = &prevPos
	r.PositionChange = prevPos - e.GlobalPosition
	return r
}

func hasStatistics(snap Snapshot, playerID string) bool {
	for _, st := range snap.Statistics {
		if st.PlayerID == playerID {
			return true
		}
	}
	return false
}

func hasPlayer(snap Snapshot, playerID string) bool {
	for _, p := range snap.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}
