// In file: internal/app/app.go

// Package app is the composition root shared by the gateway server and the
// operator CLI: it turns a Config into LLM clients, an agent runner and the
// optional Redis-backed store.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
	"github.com/dileep-u-k/compliance-gateway/internal/config"
	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/schedule"
	"github.com/dileep-u-k/compliance-gateway/internal/store"
	"github.com/dileep-u-k/compliance-gateway/internal/version"
)

// CacheStatus reports whether a run came from the report cache.
type CacheStatus string

const (
	CacheHit      CacheStatus = "HIT"
	CacheMiss     CacheStatus = "MISS"
	CacheDisabled CacheStatus = "DISABLED"
)

// App holds the long-lived services. Store and Profiler are nil when no Redis
// address is configured.
type App struct {
	Config   *config.Config
	Runner   *agents.Runner
	Store    *store.ReportStore
	Profiler *llm.Profiler

	clients *llm.Clients
	rdb     *redis.Client
}

// Option customizes New.
type Option func(*options)

type options struct {
	clients *llm.Clients
	rdb     *redis.Client
	clock   func() time.Time
}

// WithClients injects ready-made LLM clients instead of building them from
// the configured API keys. The retry and profiling decorators are not applied.
func WithClients(clients *llm.Clients) Option {
	return func(o *options) {
		o.clients = clients
	}
}

// WithRedis injects a Redis client instead of dialing Config.RedisAddr.
func WithRedis(rdb *redis.Client) Option {
	return func(o *options) {
		o.rdb = rdb
	}
}

// WithClock replaces the wall clock the agents read "today" from.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// New wires every service. A configured but unreachable Redis is fatal.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{Config: cfg, rdb: o.rdb}

	if a.rdb == nil && cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	if a.rdb != nil {
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("could not connect to Redis: %w", err)
		}
		a.Store = store.NewReportStore(a.rdb, cfg.ReportTTL)
		a.Profiler = llm.NewProfiler(a.rdb)
	}

	a.clients = o.clients
	if a.clients == nil {
		// Profiling sits inside the retry loop so every attempt is recorded.
		decorators := []llm.Decorator{}
		if a.Profiler != nil {
			decorators = append(decorators, func(_ string, c llm.LLMClient) llm.LLMClient {
				return llm.NewProfiledClient(c, a.Profiler)
			})
		}
		decorators = append(decorators, func(_ string, c llm.LLMClient) llm.LLMClient {
			return llm.NewRetryingClient(c, cfg.Retry)
		})
		clients, err := llm.NewClients(ctx, cfg.APIKeys, decorators...)
		if err != nil {
			return nil, err
		}
		a.clients = clients
	}

	runnerOpts, err := cfg.RunnerOptions()
	if err != nil {
		return nil, err
	}
	deps := cfg.Deps()
	if o.clock != nil {
		deps.Clock = o.clock
	}
	runner, err := agents.NewRunner(a.clients, deps, runnerOpts...)
	if err != nil {
		return nil, err
	}
	a.Runner = runner
	log.Print(ctx,
		log.KV{K: "msg", V: "services initialized"},
		log.KV{K: "providers", V: a.clients.Providers()},
		log.KV{K: "store", V: a.Store != nil},
	)
	return a, nil
}

// Close releases the Redis connection.
func (a *App) Close() error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}

// Run executes an agent, answering from the report cache when allowed. Every
// executed run is stored, failed ones included; only successful runs are
// cached.
func (a *App) Run(ctx context.Context, agent string, input json.RawMessage, model string, useCache bool) (*agents.Run, CacheStatus, error) {
	status := CacheDisabled
	var cacheKey string
	if a.Store != nil && useCache {
		prepared, err := a.Runner.Prepare(agent, input, model)
		if err != nil {
			return nil, status, err
		}
		status = CacheMiss
		cacheKey = version.RunCacheKey(prepared.Agent, prepared.Config.Model, prepared.Date, prepared.Message)
		cached, err := a.Store.Lookup(ctx, cacheKey)
		switch {
		case err == nil:
			log.Info(ctx, log.KV{K: "msg", V: "report cache hit"}, log.KV{K: "agent", V: agent}, log.KV{K: "run_id", V: cached.ID})
			return cached, CacheHit, nil
		case !errors.Is(err, store.ErrNotFound):
			log.Warn(ctx, log.KV{K: "msg", V: "report cache unavailable"}, log.KV{K: "err", V: err.Error()})
		}
	}

	run, runErr := a.Runner.Run(ctx, agent, input, model)
	if run != nil && a.Store != nil {
		if err := a.Store.Save(ctx, run); err != nil {
			log.Error(ctx, err, log.KV{K: "msg", V: "failed to store run"}, log.KV{K: "run_id", V: run.ID})
		} else if runErr == nil && cacheKey != "" {
			if err := a.Store.Remember(ctx, cacheKey, run.ID); err != nil {
				log.Warn(ctx, log.KV{K: "msg", V: "failed to cache report"}, log.KV{K: "err", V: err.Error()})
			}
		}
	}
	return run, status, runErr
}

// ScheduleJobs registers every configured schedule entry on s. Scheduled runs
// bypass the cache so each firing produces a fresh report.
func (a *App) ScheduleJobs(s *schedule.Scheduler) error {
	for _, entry := range a.Config.Schedule {
		input, err := scheduleInput(entry)
		if err != nil {
			return err
		}
		agent := entry.Agent
		err = s.Add(entry.Name, entry.Cron, func(ctx context.Context) error {
			run, _, err := a.Run(ctx, agent, input, "", false)
			if err != nil {
				return err
			}
			log.Info(ctx, log.KV{K: "msg", V: "scheduled report ready"}, log.KV{K: "run_id", V: run.ID})
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CheckModels pings the effective model of every agent once with a tiny
// prompt. With profiling enabled the outcome lands in the model profiles.
func (a *App) CheckModels(ctx context.Context, timeout time.Duration) map[string]error {
	models := map[string]bool{}
	for _, info := range a.Runner.Agents() {
		models[info.Model] = true
	}
	names := make([]string, 0, len(models))
	for m := range models {
		names = append(names, m)
	}
	sort.Strings(names)

	results := make(map[string]error, len(names))
	for _, model := range names {
		client, err := a.clients.ForModel(model)
		if err != nil {
			results[model] = err
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		_, err = client.Generate(callCtx,
			[]llm.Message{{Role: llm.RoleUser, Content: "Reply with OK."}},
			&llm.GenerationConfig{Model: model, MaxTokens: 5}, nil)
		cancel()
		results[model] = err
		log.Info(ctx, log.KV{K: "msg", V: "model health check"}, log.KV{K: "model", V: model}, log.KV{K: "healthy", V: err == nil})
	}
	return results
}

// --- Helper Functions ---

func scheduleInput(entry config.ScheduleEntry) (json.RawMessage, error) {
	if len(entry.Input) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(entry.Input)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: encode input: %w", entry.Name, err)
	}
	return data, nil
}
