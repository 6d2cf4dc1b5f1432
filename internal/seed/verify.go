package seed

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/internal/domain/scoring"
)

const (
	scoreTolerance = 1e-6
	maxProblems    = 10
)

// problems collects at most maxProblems mismatches.
type problems struct {
	errs    []error
	dropped int
}

func (p *problems) addf(format string, args ...any) {
	if len(p.errs) == maxProblems {
		p.dropped++
		return
	}
	p.errs = append(p.errs, fmt.Errorf("%w: "+format, append([]any{ErrMismatch}, args...)...))
}

func (p *problems) err() error {
	if p.dropped > 0 {
		p.errs = append(p.errs, fmt.Errorf("%w: %d more", ErrMismatch, p.dropped))
	}
	return errors.Join(p.errs...)
}

// Expected orders players the way the service must: score descending, then
// player id ascending.
func Expected(players []Player, w scoring.Weights) []Player {
	out := slices.Clone(players)
	slices.SortFunc(out, func(a, b Player) int {
		ka, kb := model.ScoreKey(w.Score(a.Statistics)), model.ScoreKey(w.Score(b.Statistics))
		if c := cmp.Compare(kb, ka); c != 0 {
			return c
		}
		return cmp.Compare(a.Ref.ID, b.Ref.ID)
	})
	return out
}

// Verify checks the global view and every category view against the
// seeded population: scores, dense positions, tie order and the player join.
func Verify(players []Player, global []model.RankingWithPlayer, categories map[model.Category][]model.RankingWithPlayer, w scoring.Weights) error {
	var p problems
	expected := Expected(players, w)

	if len(global) != len(expected) {
		p.addf("global view has %d rows, want %d", len(global), len(expected))
	}
	for i := range min(len(global), len(expected)) {
		got, want := global[i], expected[i]
		if got.PlayerID != want.Ref.ID {
			p.addf("global position %d holds %s, want %s", i+1, got.PlayerID, want.Ref.ID)
			continue
		}
		if got.GlobalPosition != i+1 {
			p.addf("%s has global position %d, want %d", got.PlayerID, got.GlobalPosition, i+1)
		}
		if score := w.Score(want.Statistics); math.Abs(got.Score-score) > scoreTolerance {
			p.addf("%s has score %v, want %v", got.PlayerID, got.Score, score)
		}
		if got.Category != want.Ref.Category {
			p.addf("%s is in %s, want %s", got.PlayerID, got.Category, want.Ref.Category)
		}
		if got.PlayerMissing || got.Player == nil || got.Player.Name != want.Ref.Name {
			p.addf("%s was not joined with its player", got.PlayerID)
		}
	}

	perCategory := make(map[model.Category][]Player)
	for _, pl := range expected {
		perCategory[pl.Ref.Category] = append(perCategory[pl.Ref.Category], pl)
	}
	for c, view := range categories {
		want := perCategory[c]
		if len(view) != len(want) {
			p.addf("category %s has %d rows, want %d", c, len(view), len(want))
		}
		for i := range min(len(view), len(want)) {
			if view[i].PlayerID != want[i].Ref.ID {
				p.addf("%s position %d holds %s, want %s", c, i+1, view[i].PlayerID, want[i].Ref.ID)
				continue
			}
			if view[i].CategoryPosition != i+1 {
				p.addf("%s has %s position %d, want %d", view[i].PlayerID, c, view[i].CategoryPosition, i+1)
			}
		}
	}
	return p.err()
}
