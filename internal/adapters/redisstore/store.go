// Package redisstore keeps rankings in Redis. Each ranking is a JSON string;
// sorted sets index the ranked rows by score and by position, globally and per
// category, so pages are served with ZRANGE without sorting. Stale rows are
// stored but left out of every index.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/rankings/internal/adapters/repository"
	"github.com/okian/rankings/internal/domain/errs"
	"github.com/okian/rankings/internal/domain/model"
	"github.com/okian/rankings/pkg/metrics"
)

const (
	backendRedis   = "redis"
	defaultPrefix  = "rankings"
	maxTxRetries   = 5
	mgetChunkSize  = 500
	connectTimeout = 5 * time.Second
)

// Store implements repository.Store on Redis.
type Store struct {
	client redis.UniversalClient
	keys   keys
}

var _ repository.Store = (*Store)(nil)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.keys = keys{prefix: prefix}
		}
	}
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, keys: keys{prefix: defaultPrefix}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to addr and verifies the connection.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errs.WrapKind("redisstore.Open", errs.ErrUnexpected, fmt.Errorf("ping %s: %w", addr, err))
	}
	return New(client, opts...), nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func observe(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(backendRedis, op, float64(time.Since(start).Microseconds())/1000, err)
}

// Get returns the ranking of a player.
func (s *Store) Get(ctx context.Context, playerID string) (r model.Ranking, err error) {
	const op = "redisstore.Get"
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	b, err := s.client.Get(ctx, s.keys.row(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrNotFound, repository.ErrRankingNotFound)
	}
	if err != nil {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	if err = json.Unmarshal(b, &r); err != nil {
		return model.Ranking{}, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	return r, nil
}

// List returns one page of rankings. Views without a dedicated index are
// loaded in full and sorted in memory.
func (s *Store) List(ctx context.Context, q model.Query) (out []model.Ranking, err error) {
	const op = "redisstore.List"
	defer func(start time.Time) { observe("list", start, err) }(time.Now())

	key, rev, ok := s.keys.index(q)
	if !ok {
		ids, err := s.client.ZRange(ctx, s.keys.scope(q.Filter), 0, -1).Result()
		if err != nil {
			return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
		}
		rows, err := s.load(ctx, ids)
		if err != nil {
			return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
		}
		return model.Apply(rows, q), nil
	}

	start, stop := int64(max(q.Offset, 0)), int64(-1)
	if q.Limit > 0 {
		stop = start + int64(q.Limit) - 1
	}
	var ids []string
	if rev {
		ids, err = s.client.ZRevRange(ctx, key, start, stop).Result()
	} else {
		ids, err = s.client.ZRange(ctx, key, start, stop).Result()
	}
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	out, err = s.load(ctx, ids)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	return out, nil
}

// load fetches rows in index order; ids whose row vanished meanwhile are skipped.
func (s *Store) load(ctx context.Context, ids []string) ([]model.Ranking, error) {
	out := make([]model.Ranking, 0, len(ids))
	for begin := 0; begin < len(ids); begin += mgetChunkSize {
		end := min(begin+mgetChunkSize, len(ids))
		rowKeys := make([]string, 0, end-begin)
		for _, id := range ids[begin:end] {
			rowKeys = append(rowKeys, s.keys.row(id))
		}
		vals, err := s.client.MGet(ctx, rowKeys...).Result()
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var r model.Ranking
			if err := json.Unmarshal([]byte(raw), &r); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// Count returns the number of ranked rows in a view.
func (s *Store) Count(ctx context.Context, f model.Filter) (int, error) {
	n, err := s.client.ZCard(ctx, s.keys.scope(f)).Result()
	if err != nil {
		return 0, errs.WrapKind("redisstore.Count", errs.ErrUnexpected, err)
	}
	return int(n), nil
}

// All returns every stored ranking, stale rows included.
func (s *Store) All(ctx context.Context) (out []model.Ranking, err error) {
	const op = "redisstore.All"
	defer func(start time.Time) { observe("all", start, err) }(time.Now())

	ids, err := s.client.SMembers(ctx, s.keys.rows()).Result()
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	out, err = s.load(ctx, ids)
	if err != nil {
		return nil, errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	return out, nil
}

// Upsert replaces the ranking of one player inside a MULTI block.
func (s *Store) Upsert(ctx context.Context, r model.Ranking) (err error) {
	const op = "redisstore.Upsert"
	defer func(start time.Time) { observe("upsert", start, err) }(time.Now())

	if r.PlayerID == "" {
		return errs.WrapKind(op, errs.ErrInvalidArgument, repository.ErrInvalidRanking)
	}
	return errs.WrapKind(op, errs.ErrUnexpected, s.write(ctx, []model.Ranking{r}))
}

// UpsertAll replaces a batch of rankings inside one MULTI block.
func (s *Store) UpsertAll(ctx context.Context, rs []model.Ranking) (err error) {
	const op = "redisstore.UpsertAll"
	defer func(start time.Time) { observe("upsert_all", start, err) }(time.Now())

	for _, r := range rs {
		if r.PlayerID == "" {
			return errs.WrapKind(op, errs.ErrInvalidArgument, repository.ErrInvalidRanking)
		}
	}
	if len(rs) == 0 {
		return nil
	}
	if err = s.write(ctx, rs); err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	if n, cerr := s.Count(ctx, model.Filter{}); cerr == nil {
		metrics.UpdateTotalRankings(n)
	}
	return nil
}

// write watches the rows, reads their current categories and swaps rows and
// index entries in one transaction, retrying when a watched key changed.
func (s *Store) write(ctx context.Context, rs []model.Ranking) error {
	rowKeys := make([]string, len(rs))
	for i, r := range rs {
		rowKeys[i] = s.keys.row(r.PlayerID)
	}

	txf := func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, rowKeys...).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for i, r := range rs {
				if old, ok := decode(vals[i]); ok {
					s.unindex(ctx, pipe, old)
				}
				b, err := json.Marshal(r)
				if err != nil {
					return err
				}
				pipe.Set(ctx, rowKeys[i], b, 0)
				pipe.SAdd(ctx, s.keys.rows(), r.PlayerID)
				s.index(ctx, pipe, r)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, rowKeys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("write %d rankings: %w", len(rs), redis.TxFailedErr)
}

// Delete removes the ranking of one player.
func (s *Store) Delete(ctx context.Context, playerID string) (err error) {
	const op = "redisstore.Delete"
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	rowKey := s.keys.row(playerID)
	found := false
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, rowKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var old model.Ranking
		if err := json.Unmarshal(b, &old); err != nil {
			return err
		}
		found = true
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, rowKey)
			pipe.SRem(ctx, s.keys.rows(), playerID)
			s.unindex(ctx, pipe, old)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = s.client.Watch(ctx, txf, rowKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return errs.WrapKind(op, errs.ErrUnexpected, err)
	}
	if !found {
		return errs.WrapKind(op, errs.ErrNotFound, repository.ErrRankingNotFound)
	}
	return nil
}

func (s *Store) index(ctx context.Context, pipe redis.Pipeliner, r model.Ranking) {
	if r.Stale {
		return
	}
	score := redis.Z{Score: indexScore(r.Score), Member: r.PlayerID}
	pipe.ZAdd(ctx, s.keys.byScore(nil), score)
	pipe.ZAdd(ctx, s.keys.byScore(&r.Category), score)
	pipe.ZAdd(ctx, s.keys.byGlobal(), redis.Z{Score: float64(r.GlobalPosition), Member: r.PlayerID})
	pipe.ZAdd(ctx, s.keys.byCategoryPosition(r.Category), redis.Z{Score: float64(r.CategoryPosition), Member: r.PlayerID})
}

func (s *Store) unindex(ctx context.Context, pipe redis.Pipeliner, r model.Ranking) {
	pipe.ZRem(ctx, s.keys.byScore(nil), r.PlayerID)
	pipe.ZRem(ctx, s.keys.byScore(&r.Category), r.PlayerID)
	pipe.ZRem(ctx, s.keys.byGlobal(), r.PlayerID)
	pipe.ZRem(ctx, s.keys.byCategoryPosition(r.Category), r.PlayerID)
}

func decode(v any) (model.Ranking, bool) {
	raw, ok := v.(string)
	if !ok {
		return model.Ranking{}, false
	}
	var r model.Ranking
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return model.Ranking{}, false
	}
	return r, true
}
