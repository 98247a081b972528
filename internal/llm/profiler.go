// In file: internal/llm/profiler.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"
)

// ModelProfile tracks reliability and token consumption for one model across
// agent runs.
type ModelProfile struct {
	ModelID           string    `json:"model_id"`
	AvgLatencyMS      int64     `json:"avg_latency_ms"`
	Status            string    `json:"status"`
	ErrorRate         float64   `json:"error_rate"`
	TotalSuccesses    int64     `json:"total_successes"`
	TotalFailures     int64     `json:"total_failures"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	LastError         string    `json:"last_error,omitempty"`
	LastSeen          time.Time `json:"last_seen"`
}

const (
	statusOnline   = "online"
	statusDegraded = "degraded"
	latencyAlpha   = 0.1
)

// Profiler persists ModelProfiles in Redis hashes keyed by model id.
type Profiler struct {
	rdb *redis.Client
}

func NewProfiler(rdb *redis.Client) *Profiler {
	return &Profiler{rdb: rdb}
}

func (p *Profiler) getProfileKey(modelID string) string {
	return fmt.Sprintf("profile:%s", modelID)
}

// GetProfile returns the stored profile, or a zero profile marked online when
// the model has not been used yet.
func (p *Profiler) GetProfile(ctx context.Context, modelID string) (*ModelProfile, error) {
	data, err := p.rdb.HGetAll(ctx, p.getProfileKey(modelID)).Result()
	if err != nil {
		return nil, err
	}
	profile := &ModelProfile{ModelID: modelID, Status: statusOnline}
	if len(data) == 0 {
		return profile, nil
	}
	profile.AvgLatencyMS, _ = strconv.ParseInt(data["avg_latency_ms"], 10, 64)
	profile.TotalSuccesses, _ = strconv.ParseInt(data["total_successes"], 10, 64)
	profile.TotalFailures, _ = strconv.ParseInt(data["total_failures"], 10, 64)
	profile.TotalInputTokens, _ = strconv.ParseInt(data["total_input_tokens"], 10, 64)
	profile.TotalOutputTokens, _ = strconv.ParseInt(data["total_output_tokens"], 10, 64)
	profile.LastError = data["last_error"]
	profile.LastSeen, _ = time.Parse(time.RFC3339Nano, data["last_seen"])
	if s := data["status"]; s != "" {
		profile.Status = s
	}
	if total := profile.TotalSuccesses + profile.TotalFailures; total > 0 {
		profile.ErrorRate = float64(profile.TotalFailures) / float64(total)
	}
	return profile, nil
}

// UpdateProfileOnSuccess folds latency into an exponentially weighted average
// and accumulates token usage.
func (p *Profiler) UpdateProfileOnSuccess(ctx context.Context, modelID string, latency time.Duration, usage Usage) error {
	key := p.getProfileKey(modelID)
	err := p.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "avg_latency_ms").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next := latency.Milliseconds()
		if current > 0 {
			next = int64(latencyAlpha*float64(latency.Milliseconds()) + (1-latencyAlpha)*float64(current))
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "avg_latency_ms", next)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("update latency for %s: %w", modelID, err)
	}

	pipe := p.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, "total_successes", 1)
	pipe.HIncrBy(ctx, key, "total_input_tokens", int64(usage.PromptTokens))
	pipe.HIncrBy(ctx, key, "total_output_tokens", int64(usage.CompletionTokens))
	pipe.HSet(ctx, key, "status", statusOnline, "last_seen", time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update success counters for %s: %w", modelID, err)
	}
	return nil
}

// UpdateProfileOnFailure counts a failed call and marks the model degraded.
func (p *Profiler) UpdateProfileOnFailure(ctx context.Context, modelID string, cause error) error {
	key := p.getProfileKey(modelID)
	pipe := p.rdb.Pipeline()
	pipe.HIncrBy(ctx, key, "total_failures", 1)
	pipe.HSet(ctx, key,
		"status", statusDegraded,
		"last_error", cause.Error(),
		"last_seen", time.Now().UTC().Format(time.RFC3339Nano),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update failure counters for %s: %w", modelID, err)
	}
	return nil
}

// ProfiledClient records every Generate call on a Profiler, except calls
// cancelled by the caller. Profiling failures are logged and never fail the
// call.
type ProfiledClient struct {
	next     LLMClient
	profiler *Profiler
}

var _ LLMClient = (*ProfiledClient)(nil)

func NewProfiledClient(next LLMClient, profiler *Profiler) *ProfiledClient {
	return &ProfiledClient{next: next, profiler: profiler}
}

func (c *ProfiledClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig, availableTools []tools.Tool) (*GenerationResult, error) {
	start := time.Now()
	result, err := c.next.Generate(ctx, messages, config, availableTools)
	modelID := "unknown"
	if config != nil && config.Model != "" {
		modelID = config.Model
	}
	// Record with a detached context so a timed-out call still leaves a trace.
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		// A caller that hung up says nothing about the model's health.
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if perr := c.profiler.UpdateProfileOnFailure(recordCtx, modelID, err); perr != nil {
			log.Error(ctx, perr, log.KV{K: "model", V: modelID})
		}
		return nil, err
	}
	if perr := c.profiler.UpdateProfileOnSuccess(recordCtx, modelID, time.Since(start), result.Usage); perr != nil {
		log.Error(ctx, perr, log.KV{K: "model", V: modelID})
	}
	return result, nil
}
