package model

import (
	"strconv"
	"strings"

	"github.com/okian/rankings/internal/domain/errs"
)

// Category is a player's competitive tier. P1 is the top tier; larger
// numbers are lower tiers. The zero value is not a valid category.
type Category int

// Built-in tiers of the default three-tier setup.
const (
	P1 Category = 1
	P2 Category = 2
	P3 Category = 3
)

func (c Category) String() string {
	if c <= 0 {
		return ""
	}
	return "P" + strconv.Itoa(int(c))
}

// MarshalText encodes the category as "P<n>"; the zero value encodes as "".
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes "P<n>" (case-insensitive). Range checks belong to CategorySet.
func (c *Category) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = 0
		return nil
	}
	v, ok := parseLevel(string(b))
	if !ok {
		return errs.Invalidf("category.unmarshal", "invalid category %q", string(b))
	}
	*c = v
	return nil
}

func parseLevel(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != 'P' && s[0] != 'p') {
		return 0, false
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return Category(n), true
}

// CategorySet is the closed set of tiers P1..Pn in use, together with the
// fallback tier legacy values collapse into.
type CategorySet struct {
	count    int
	fallback Category
}

// DefaultCategories is the three-tier setup with P3 as the fallback.
func DefaultCategories() CategorySet {
	return CategorySet{count: 3, fallback: P3}
}

// NewCategorySet builds P1..P<count>. A zero fallback selects the lowest tier.
func NewCategorySet(count int, fallback Category) (CategorySet, error) {
	if count < 1 {
		return CategorySet{}, errs.Invalidf("category.set", "category count must be positive, got %d", count)
	}
	if fallback == 0 {
		fallback = Category(count)
	}
	if fallback < 1 || int(fallback) > count {
		return CategorySet{}, errs.Invalidf("category.set", "fallback %s outside P1..P%d", fallback, count)
	}
	return CategorySet{count: count, fallback: fallback}, nil
}

// Count returns the number of tiers.
func (s CategorySet) Count() int { return s.count }

// Fallback returns the tier unknown legacy values map to.
func (s CategorySet) Fallback() Category { return s.fallback }

// Valid reports whether c belongs to the set.
func (s CategorySet) Valid(c Category) bool {
	return c >= 1 && int(c) <= s.count
}

// All lists the tiers from P1 down.
func (s CategorySet) All() []Category {
	out := make([]Category, s.count)
	for i := range out {
		out[i] = Category(i + 1)
	}
	return out
}

// Parse is the strict parser for external input such as query filters.
func (s CategorySet) Parse(raw string) (Category, error) {
	c, ok := parseLevel(raw)
	if !ok || !s.Valid(c) {
		return 0, errs.Invalidf("category.parse", "unknown category %q (want P1..P%d)", raw, s.count)
	}
	return c, nil
}

// Legacy maps stored category values, including free text written by older
// clients, into the set. Anything that does not name a tier of the set maps to
// the fallback tier; ok is false in that case.
func (s CategorySet) Legacy(raw string) (c Category, ok bool) {
	if v, parsed := parseLevel(raw); parsed && s.Valid(v) {
		return v, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && s.Valid(Category(n)) {
		return Category(n), true
	}
	return s.fallback, false
}

// Normalize applies the legacy mapping to an already decoded category.
func (s CategorySet) Normalize(c Category) (Category, bool) {
	if s.Valid(c) {
		return c, true
	}
	return s.fallback, false
}
