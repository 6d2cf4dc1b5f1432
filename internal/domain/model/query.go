package model

import (
	"cmp"
	"slices"
	"strings"
)

// SortField names a sortable ranking attribute.
type SortField string

const (
	SortScore            SortField = "score"
	SortGlobalPosition   SortField = "globalPosition"
	SortCategoryPosition SortField = "categoryPosition"
)

// ParseSortField accepts the camelCase names and their snake_case aliases.
func ParseSortField(s string) (SortField, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "score":
		return SortScore, true
	case "globalposition", "global_position":
		return SortGlobalPosition, true
	case "categoryposition", "category_position":
		return SortCategoryPosition, true
	}
	return "", false
}

// Filter restricts a ranking view. A nil Category means the global view.
type Filter struct {
	Category *Category
}

// Match reports whether r belongs to the filtered view. Stale rows belong to
// no view.
func (f Filter) Match(r Ranking) bool {
	if r.Stale {
		return false
	}
	return f.Category == nil || r.Category == *f.Category
}

// Query describes one page of a ranking view. Limit <= 0 returns every row
// from Offset on and is meant for internal callers only.
type Query struct {
	Filter
	Sort   SortField
	Desc   bool
	Limit  int
	Offset int
}

// Compare orders a before b for the query's sort in ascending direction.
// Ascending by score is the exact reverse of the leaderboard order (score
// desc, player id asc), so flipping the direction reverses every page.
func Compare(a, b Ranking, field SortField) int {
	switch field {
	case SortScore:
		if c := cmp.Compare(ScoreKey(a.Score), ScoreKey(b.Score)); c != 0 {
			return c
		}
		return cmp.Compare(b.PlayerID, a.PlayerID)
	case SortCategoryPosition:
		if c := cmp.Compare(a.CategoryPosition, b.CategoryPosition); c != 0 {
			return c
		}
	default:
		if c := cmp.Compare(a.GlobalPosition, b.GlobalPosition); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.PlayerID, b.PlayerID)
}

// SortRankings sorts rs in place according to q.
func SortRankings(rs []Ranking, q Query) {
	slices.SortFunc(rs, func(a, b Ranking) int {
		c := Compare(a, b, q.Sort)
		if q.Desc {
			return -c
		}
		return c
	})
}

// Page applies offset and limit to an already sorted slice.
func Page(rs []Ranking, offset, limit int) []Ranking {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rs) {
		return []Ranking{}
	}
	end := len(rs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rs[offset:end]
}

// Apply filters, sorts and pages rs without modifying it.
func Apply(rs []Ranking, q Query) []Ranking {
	out := make([]Ranking, 0, len(rs))
	for _, r := range rs {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	SortRankings(out, q)
	return Page(out, q.Offset, q.Limit)
}
