// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional YAML file and environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"runtime"

	"github.com/okian/rankings/internal/domain/scoring"
)

// Statistics failure policies.
const (
	PolicyFail = "fail"
	PolicyZero = "zero"
)

// Recompute modes for match completed events.
const (
	RecomputeAll     = "all"
	RecomputePlayers = "players"
)

// Source drivers and ranking store backends.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
)

// ScoreWeights are the coefficients of the ranking score.
type ScoreWeights struct {
	WinRate       float64 `koanf:"win_rate"`
	AverageScore  float64 `koanf:"average_score"`
	TournamentWin float64 `koanf:"tournament_win"`
	MatchWin      float64 `koanf:"match_win"`
}

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// SourceDriver selects where statistics and players are read from.
	SourceDriver string `koanf:"source_driver"`
	// DatabaseDSN is the sqlite path or postgres connection string.
	DatabaseDSN string `koanf:"database_dsn"`
	// FixturesPath optionally seeds the memory source from a YAML file.
	FixturesPath string `koanf:"fixtures_path"`

	// RankingStore selects where rankings are persisted.
	RankingStore   string `koanf:"ranking_store"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKeyPrefix string `koanf:"redis_key_prefix"`

	// EventQueueSize bounds the in-memory match event queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the number of match ids remembered for deduplication.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxListLimit caps GET /rankings?limit.
	MaxListLimit int `koanf:"max_list_limit"`
	// DefaultListLimit applies when limit is omitted.
	DefaultListLimit int `koanf:"default_list_limit"`
	// JoinConcurrency bounds concurrent player lookups while listing.
	JoinConcurrency int `koanf:"join_concurrency"`

	// CategoryCount is the number of tiers P1..Pn.
	CategoryCount int `koanf:"category_count"`
	// FallbackCategory receives unknown legacy categories; empty means the lowest tier.
	FallbackCategory string `koanf:"fallback_category"`

	// OnStatisticsError is the statistics failure policy: fail or zero.
	OnStatisticsError string `koanf:"on_statistics_error"`
	// RecomputeMode selects what a match completed event recomputes: all or players.
	RecomputeMode string `koanf:"recompute_mode"`
	// RecomputeOnStart runs a full computation before serving.
	RecomputeOnStart bool `koanf:"recompute_on_start"`

	ScoreWeights ScoreWeights `koanf:"score_weights"`

	// MetricsNamespace and MetricsSubsystem prefix every exported metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	// MetricsHistogramBuckets overrides the latency buckets in milliseconds;
	// empty keeps the Prometheus defaults.
	MetricsHistogramBuckets []float64 `koanf:"metrics_histogram_buckets"`
}

// Weights returns the configured score weights.
func (c *Config) Weights() scoring.Weights {
	return scoring.Weights{
		WinRate:       c.ScoreWeights.WinRate,
		AverageScore:  c.ScoreWeights.AverageScore,
		TournamentWin: c.ScoreWeights.TournamentWin,
		MatchWin:      c.ScoreWeights.MatchWin,
	}
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		SourceDriver:      DriverMemory,
		DatabaseDSN:       "file:rankings.db?_pragma=busy_timeout(5000)",
		RankingStore:      StoreMemory,
		RedisAddr:         "localhost:6379",
		RedisKeyPrefix:    "rankings",
		EventQueueSize:    10_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        100_000,
		MaxListLimit:      100,
		DefaultListLimit:  20,
		JoinConcurrency:   8,
		CategoryCount:     3,
		OnStatisticsError: PolicyFail,
		RecomputeMode:     RecomputeAll,
		RecomputeOnStart:  true,
		ScoreWeights: ScoreWeights{
			WinRate:       0.4,
			AverageScore:  0.3,
			TournamentWin: 15,
			MatchWin:      0.3,
		},
		MetricsNamespace: "rankings",
		MetricsSubsystem: "engine",
	}
}
