package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RANKINGS_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RANKINGS_CONFIG is set
//  3. env (prefix RANKINGS_)
//
// A .env file in the working directory, when present, is loaded into the
// process environment first; variables already set win over it.
func Load(_ context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %w", ErrLoadConfig, err)
	}

	base := New()
	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// RANKINGS_QUEUE_SIZE -> queue_size; nested keys use a double underscore:
	// RANKINGS_SCORE_WEIGHTS__WIN_RATE -> score_weights.win_rate
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside the service.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if c.Addr == "" {
		return invalid("addr must not be empty")
	}
	switch c.SourceDriver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return invalid("source_driver must be memory, sqlite or postgres, got %q", c.SourceDriver)
	}
	switch c.RankingStore {
	case StoreMemory, StoreRedis:
	case StoreSQL:
		if c.SourceDriver == DriverMemory {
			return invalid("ranking_store sql requires source_driver sqlite or postgres")
		}
	default:
		return invalid("ranking_store must be memory, sql or redis, got %q", c.RankingStore)
	}
	switch c.OnStatisticsError {
	case PolicyFail, PolicyZero:
	default:
		return invalid("on_statistics_error must be fail or zero, got %q", c.OnStatisticsError)
	}
	switch c.RecomputeMode {
	case RecomputeAll, RecomputePlayers:
	default:
		return invalid("recompute_mode must be all or players, got %q", c.RecomputeMode)
	}
	if c.CategoryCount < 1 {
		return invalid("category_count must be positive")
	}
	if c.MaxListLimit < 1 {
		return invalid("max_list_limit must be positive")
	}
	if c.DefaultListLimit < 1 || c.DefaultListLimit > c.MaxListLimit {
		return invalid("default_list_limit must be between 1 and max_list_limit")
	}
	if err := c.Weights().Validate(); err != nil {
		return fmt.Errorf("%w: score_weights: %w", ErrInvalidConfig, err)
	}
	for i, b := range c.MetricsHistogramBuckets {
		if math.IsNaN(b) || math.IsInf(b, 0) || (i > 0 && b <= c.MetricsHistogramBuckets[i-1]) {
			return invalid("metrics_histogram_buckets must be finite and strictly increasing")
		}
	}
	return nil
}
