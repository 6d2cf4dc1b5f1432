package redisstore

import (
	"github.com/okian/rankings/internal/domain/model"
)

// keys lays out the key space:
//
//	<prefix>:ranking:<playerID>      JSON row
//	<prefix>:rows                    set of every stored player id
//	<prefix>:idx:score               score index, all players
//	<prefix>:idx:score:<category>    score index per category
//	<prefix>:idx:global              global position index
//	<prefix>:idx:catpos:<category>   category position index
type keys struct {
	prefix string
}

func (k keys) row(playerID string) string {
	return k.prefix + ":ranking:" + playerID
}

func (k keys) rows() string {
	return k.prefix + ":rows"
}

func (k keys) byScore(c *model.Category) string {
	if c == nil {
		return k.prefix + ":idx:score"
	}
	return k.prefix + ":idx:score:" + c.String()
}

func (k keys) byGlobal() string {
	return k.prefix + ":idx:global"
}

func (k keys) byCategoryPosition(c model.Category) string {
	return k.prefix + ":idx:catpos:" + c.String()
}

// scope is the score index holding every member of the filtered view. Stale
// rows are never indexed.
func (k keys) scope(f model.Filter) string {
	return k.byScore(f.Category)
}

// index picks the sorted set serving q directly and whether it must be read
// in reverse. Sorted sets break score ties by member ascending, which is the
// player id order every view uses.
func (k keys) index(q model.Query) (key string, rev bool, ok bool) {
	switch {
	case q.Sort == model.SortScore:
		// members are stored under the negated score, so ascending is the leaderboard
		return k.byScore(q.Category), !q.Desc, true
	case q.Sort == model.SortCategoryPosition && q.Category != nil:
		return k.byCategoryPosition(*q.Category), q.Desc, true
	case q.Sort == model.SortGlobalPosition && q.Category == nil:
		return k.byGlobal(), q.Desc, true
	}
	return "", false, false
}

// indexScore negates the fixed-point score so an ascending ZRANGE lists the
// best score first with ties in player id order.
func indexScore(score float64) float64 {
	return -float64(model.ScoreKey(score))
}
