// In file: internal/llm/retry.go
package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	"goa.design/clue/log"
)

// RetryPolicy bounds the retries of transient provider failures.
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt. Values below 1 mean a single attempt.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff caps any single delay before jitter.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// Multiplier grows the delay after each retry.
	Multiplier float64 `yaml:"multiplier"`
	// Jitter adds up to this fraction of the delay at random.
	Jitter float64 `yaml:"jitter"`
}

// DefaultRetryPolicy retries three times starting at two seconds and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    maxRetries,
		InitialBackoff: initialRetryDelay,
		MaxBackoff:     maxRetryDelay,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

// Backoff returns the delay before retry number retry (1 for the first retry).
// The result never exceeds MaxBackoff*(1+Jitter).
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(retry-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// RetryExhaustedError is returned when every attempt failed with a transient error.
type RetryExhaustedError struct {
	Attempts  int
	LastError error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastError }

// RetryingClient decorates an LLMClient with RetryPolicy. Permanent failures
// are returned immediately; transient ones are retried until the policy or
// the context runs out.
type RetryingClient struct {
	next   LLMClient
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ LLMClient = (*RetryingClient)(nil)

// NewRetryingClient wraps next.
func NewRetryingClient(next LLMClient, policy RetryPolicy) *RetryingClient {
	return &RetryingClient{next: next, policy: policy, sleep: sleepContext}
}

func (c *RetryingClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig, availableTools []tools.Tool) (*GenerationResult, error) {
	attempts := c.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.next.Generate(ctx, messages, config, availableTools)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt == attempts {
			break
		}
		delay := c.policy.Backoff(attempt)
		log.Warn(ctx,
			log.KV{K: "msg", V: "transient provider failure, retrying"},
			log.KV{K: "attempt", V: attempt},
			log.KV{K: "delay", V: delay.String()},
			log.KV{K: "err", V: err.Error()},
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, lastErr
		}
	}
	return nil, &RetryExhaustedError{Attempts: attempts, LastError: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
