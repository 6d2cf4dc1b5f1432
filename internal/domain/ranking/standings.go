package ranking

import (
	"cmp"
	"slices"

	"github.com/okian/rankings/internal/domain/model"
)

// Data integrity reasons reported for rows that were not ranked.
const (
	ReasonOrphanStatistics    = "orphan_statistics"
	ReasonDuplicateStatistics = "duplicate_statistics"
	ReasonCategoryMapped      = "category_out_of_range"
	ReasonDuplicatePlayer     = "duplicate_player"
	ReasonStaleRanking        = "stale_ranking"
)

// Skipped describes a statistics row left out of the population.
type Skipped struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
}

// Entry is one ranked player inside Standings.
type Entry struct {
	Player           model.PlayerRef
	Statistics       model.Statistics
	Score            float64
	GlobalPosition   int
	CategoryPosition int

	key int64
}

// Standings is the result of the single sort pass over a snapshot. It is
// immutable once built and safe to share between goroutines.
type Standings struct {
	entries    []Entry
	index      map[string]int
	categories map[model.Category]int
	skipped    []Skipped
}

// Len returns the number of ranked players.
func (s *Standings) Len() int { return len(s.entries) }

// Entries returns the ranked players ordered by global position. Callers
// must not modify the returned slice.
func (s *Standings) Entries() []Entry { return s.entries }

// Lookup returns the entry of a ranked player.
func (s *Standings) Lookup(playerID string) (Entry, bool) {
	i, ok := s.index[playerID]
	if !ok {
		return Entry{}, false
	}
	return s.entries[i], true
}

// CategorySize returns how many ranked players belong to c.
func (s *Standings) CategorySize(c model.Category) int { return s.categories[c] }

// Skipped lists the rows excluded from the population.
func (s *Standings) Skipped() []Skipped { return s.skipped }

// rank sorts entries once (score descending, player id ascending) and assigns
// dense global and per-category positions in one sweep. Filtering a sorted
// list preserves its order, so the sweep yields the same category positions
// as re-ranking each category on its own.
func rank(entries []Entry) *Standings {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(b.key, a.key); c != 0 {
			return c
		}
		return cmp.Compare(a.Player.ID, b.Player.ID)
	})

	s := &Standings{
		entries:    entries,
		index:      make(map[string]int, len(entries)),
		categories: make(map[model.Category]int),
	}
	for i := range entries {
		e := &entries[i]
		e.GlobalPosition = i + 1
		s.categories[e.Player.Category]++
		e.CategoryPosition = s.categories[e.Player.Category]
		s.index[e.Player.ID] = i
	}
	return s
}
