package sqlstore

import "strings"

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// statistics has no foreign key to players: statistics rows for players the
// catalog does not know are valid input and get skipped at ranking time.
var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS statistics (
		player_id TEXT PRIMARY KEY,
		matches_played INTEGER NOT NULL DEFAULT 0,
		matches_won INTEGER NOT NULL DEFAULT 0,
		matches_lost INTEGER NOT NULL DEFAULT 0,
		total_points DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		tournaments_played INTEGER NOT NULL DEFAULT 0,
		tournaments_won INTEGER NOT NULL DEFAULT 0,
		win_rate DOUBLE PRECISION NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS rankings (
		player_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		score_key BIGINT NOT NULL,
		global_position INTEGER NOT NULL,
		category_position INTEGER NOT NULL,
		category TEXT NOT NULL,
		previous_global_position INTEGER,
		position_change INTEGER NOT NULL DEFAULT 0,
		last_calculated {{ts}} NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL,
		stale BOOLEAN NOT NULL DEFAULT FALSE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_players_category ON players(category);`,
	`CREATE INDEX IF NOT EXISTS idx_rankings_score ON rankings(stale, score_key, {{pid}});`,
	`CREATE INDEX IF NOT EXISTS idx_rankings_global ON rankings(stale, global_position, {{pid}});`,
	`CREATE INDEX IF NOT EXISTS idx_rankings_category ON rankings(stale, category, category_position, {{pid}});`,
}

// schema returns the DDL for a dialect. The sqlite driver only decodes
// time.Time for columns declared TIMESTAMP. Ranking indexes use the same
// player id collation as the listing queries.
func schema(dialect string) []string {
	ts := "TIMESTAMP"
	if dialect == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	r := strings.NewReplacer("{{ts}}", ts, "{{pid}}", playerIDOrder(dialect))
	out := make([]string, len(schemaStmts))
	for i, stmt := range schemaStmts {
		out[i] = r.Replace(stmt)
	}
	if dialect == DriverSQLite {
		out = append([]string{`PRAGMA foreign_keys=ON;`}, out...)
	}
	return out
}
