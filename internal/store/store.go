// In file: internal/store/store.go

// Package store keeps agent runs in Redis so reports can be fetched later and
// identical requests can be answered from cache.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
)

// ErrNotFound is returned for a run or cache key that is absent or expired.
var ErrNotFound = errors.New("not found")

// maxIndexed bounds the per-agent history index.
const maxIndexed = 500

// ReportStore persists runs as JSON strings with a TTL. Each agent has a
// sorted-set index scored by finish time.
type ReportStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReportStore returns a store whose entries expire after ttl. A zero ttl
// keeps entries forever.
func NewReportStore(rdb *redis.Client, ttl time.Duration) *ReportStore {
	return &ReportStore{rdb: rdb, ttl: ttl}
}

func runKey(id string) string {
	return fmt.Sprintf("run:%s", id)
}

func indexKey(agent string) string {
	return fmt.Sprintf("runs:%s", agent)
}

// Save stores run and adds it to its agent's index.
func (s *ReportStore) Save(ctx context.Context, run *agents.Run) error {
	if run == nil || run.ID == "" {
		return errors.New("store: run has no id")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, runKey(run.ID), data, s.ttl)
	pipe.ZAdd(ctx, indexKey(run.Agent), redis.Z{Score: float64(run.FinishedAt.UnixNano()), Member: run.ID})
	pipe.ZRemRangeByRank(ctx, indexKey(run.Agent), 0, -maxIndexed-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns the stored run.
func (s *ReportStore) Get(ctx context.Context, id string) (*agents.Run, error) {
	data, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	var run agents.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	return &run, nil
}

// Recent returns up to n runs of agent, newest first. Expired runs are
// dropped from the index as they are found.
func (s *ReportStore) Recent(ctx context.Context, agent string, n int) ([]*agents.Run, error) {
	if n <= 0 {
		return []*agents.Run{}, nil
	}
	ids, err := s.rdb.ZRevRange(ctx, indexKey(agent), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list runs of %s: %w", agent, err)
	}
	runs := make([]*agents.Run, 0, len(ids))
	var expired []any
	for _, id := range ids {
		run, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expired = append(expired, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if len(expired) > 0 {
		if err := s.rdb.ZRem(ctx, indexKey(agent), expired...).Err(); err != nil {
			log.Warn(ctx, log.KV{K: "msg", V: "failed to prune run index"}, log.KV{K: "agent", V: agent}, log.KV{K: "err", V: err.Error()})
		}
	}
	return runs, nil
}

// Remember points cacheKey at runID for the store's TTL.
func (s *ReportStore) Remember(ctx context.Context, cacheKey, runID string) error {
	if err := s.rdb.Set(ctx, cacheKey, runID, s.ttl).Err(); err != nil {
		return fmt.Errorf("remember %s: %w", cacheKey, err)
	}
	return nil
}

// Lookup returns the run cached under cacheKey.
func (s *ReportStore) Lookup(ctx context.Context, cacheKey string) (*agents.Run, error) {
	id, err := s.rdb.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("cache key %s: %w", cacheKey, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", cacheKey, err)
	}
	return s.Get(ctx, id)
}

// Ping checks the connection.
func (s *ReportStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
