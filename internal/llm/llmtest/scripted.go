// In file: internal/llm/llmtest/scripted.go

// Package llmtest provides a scripted llm.LLMClient for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

// ErrScriptExhausted is returned when Generate is called more times than scripted.
var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted reply: either a result or an error.
type Step struct {
	Result *llm.GenerationResult
	Err    error
	// Wait, when set, makes the step block until the context is done and
	// return its error. Used to exercise per-call timeouts.
	Wait bool
}

// Call records what the client received.
type Call struct {
	Messages []llm.Message
	Config   llm.GenerationConfig
	Tools    []tools.Tool
}

// ScriptedClient replays Steps in order. It is safe for concurrent use.
type ScriptedClient struct {
	mu    sync.Mutex
	steps []Step
	calls []Call
	// Repeat, when true, keeps replaying the last step once the script ends.
	Repeat bool
}

var _ llm.LLMClient = (*ScriptedClient)(nil)

// NewScriptedClient returns a client that replays steps.
func NewScriptedClient(steps ...Step) *ScriptedClient {
	return &ScriptedClient{steps: steps}
}

// Text scripts a final free-text answer.
func Text(content string) Step {
	return Step{Result: &llm.GenerationResult{Content: content, StopReason: "end_turn"}}
}

// ToolCalls scripts a turn requesting the given calls.
func ToolCalls(calls ...*tools.ToolCall) Step {
	return Step{Result: &llm.GenerationResult{ToolCalls: calls, StopReason: "tool_use"}}
}

// Fail scripts an error.
func Fail(err error) Step {
	return Step{Err: err}
}

func (c *ScriptedClient) Generate(ctx context.Context, messages []llm.Message, config *llm.GenerationConfig, availableTools []tools.Tool) (*llm.GenerationResult, error) {
	c.mu.Lock()
	call := Call{Messages: append([]llm.Message(nil), messages...), Tools: availableTools}
	if config != nil {
		call.Config = *config
	}
	idx := len(c.calls)
	c.calls = append(c.calls, call)
	var step Step
	switch {
	case idx < len(c.steps):
		step = c.steps[idx]
	case c.Repeat && len(c.steps) > 0:
		step = c.steps[len(c.steps)-1]
	default:
		c.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	c.mu.Unlock()

	if step.Wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	res := *step.Result
	return &res, nil
}

// Calls returns the recorded calls.
func (c *ScriptedClient) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}
