// In file: internal/orchestrator/orchestrator.go

// Package orchestrator drives the tool-calling conversation between a model
// and an agent's tools and turns the outcome into a Report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	"github.com/google/uuid"
	"goa.design/clue/log"
)

const (
	DefaultMaxTurns    = 20
	DefaultCallTimeout = 120 * time.Second
)

// Executor is the tool side of a run. *tools.ToolManager implements it.
type Executor interface {
	GetDefinitions() []tools.Tool
	IsTerminal(name string) bool
	Execute(ctx context.Context, call *tools.ToolCall) tools.Result
}

// Config bounds one run.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature *float32
	// MaxTurns caps the number of model calls. Zero selects DefaultMaxTurns.
	MaxTurns int
	// CallTimeout bounds each model call. Zero selects DefaultCallTimeout.
	CallTimeout time.Duration
	// FallbackKey wraps non-JSON final text. Zero selects DefaultFallbackKey.
	FallbackKey string
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.FallbackKey == "" {
		c.FallbackKey = DefaultFallbackKey
	}
	return c
}

// Result is the outcome of a completed run.
type Result struct {
	Report Report `json:"report"`
	Source Source `json:"source"`
	// TerminalTool names the tool whose output became the report, if any.
	TerminalTool string `json:"terminal_tool,omitempty"`
	Turns        int    `json:"turns"`
	// ToolCalls counts executed invocations, including failed ones.
	ToolCalls int       `json:"tool_calls"`
	Usage     llm.Usage `json:"usage"`
	// FinalText is the model's last free-text answer.
	FinalText string `json:"final_text,omitempty"`
}

// Orchestrator runs conversations for one agent. It holds no per-run state,
// so a single value can serve concurrent runs.
type Orchestrator struct {
	client       llm.LLMClient
	executor     Executor
	systemPrompt string
	config       Config
}

// New validates its collaborators and applies config defaults.
func New(client llm.LLMClient, executor Executor, systemPrompt string, config Config) (*Orchestrator, error) {
	if client == nil {
		return nil, errors.New("orchestrator: LLM client is nil")
	}
	if executor == nil {
		return nil, errors.New("orchestrator: executor is nil")
	}
	if config.Model == "" {
		return nil, errors.New("orchestrator: model is required")
	}
	return &Orchestrator{
		client:       client,
		executor:     executor,
		systemPrompt: systemPrompt,
		config:       config.withDefaults(),
	}, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// Run sends userMessage and loops until the model stops requesting tools.
func (o *Orchestrator) Run(ctx context.Context, userMessage string) (*Result, error) {
	messages := make([]llm.Message, 0, 2+4*o.config.MaxTurns)
	if o.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.systemPrompt})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})

	genConfig := &llm.GenerationConfig{
		Model:       o.config.Model,
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
	}
	definitions := o.executor.GetDefinitions()
	agg := NewAggregator(o.config.FallbackKey)
	result := &Result{}

	for turn := 1; turn <= o.config.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Turns = turn
		log.Debug(ctx, log.KV{K: "msg", V: "calling model"}, log.KV{K: "turn", V: turn}, log.KV{K: "messages", V: len(messages)})

		gen, err := o.generate(ctx, messages, genConfig, definitions)
		if err != nil {
			return nil, fmt.Errorf("model call failed on turn %d: %w", turn, err)
		}
		result.Usage.Add(gen.Usage)

		calls := withCallIDs(gen.ToolCalls)
		if len(calls) == 0 {
			result.FinalText = gen.Content
			result.Report, result.Source = agg.Final(gen.Content)
			result.TerminalTool = agg.TerminalTool()
			log.Print(ctx,
				log.KV{K: "msg", V: "run complete"},
				log.KV{K: "turns", V: turn},
				log.KV{K: "tool_calls", V: result.ToolCalls},
				log.KV{K: "source", V: string(result.Source)},
				log.KV{K: "total_tokens", V: result.Usage.TotalTokens},
			)
			return result, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: gen.Content, ToolCalls: calls})
		for _, call := range calls {
			res := o.execute(ctx, call)
			result.ToolCalls++
			if o.executor.IsTerminal(call.Function.Name) && agg.ObserveTerminal(res) {
				log.Info(ctx, log.KV{K: "msg", V: "terminal output recorded"}, log.KV{K: "tool", V: call.Function.Name})
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    res.Content(),
				ToolCallID: res.CallID,
				ToolName:   res.Name,
				IsError:    res.IsError,
			})
		}
	}

	log.Warn(ctx, log.KV{K: "msg", V: "turn limit exceeded"}, log.KV{K: "max_turns", V: o.config.MaxTurns})
	return nil, &TurnLimitError{MaxTurns: o.config.MaxTurns, Partial: agg.Partial()}
}

// --- Helper Functions ---

// generate performs one model call under the per-call timeout.
func (o *Orchestrator) generate(ctx context.Context, messages []llm.Message, config *llm.GenerationConfig, definitions []tools.Tool) (*llm.GenerationResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
	defer cancel()
	gen, err := o.client.Generate(callCtx, messages, config, definitions)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrCallTimeout, o.config.CallTimeout, err)
		}
		return nil, err
	}
	if gen == nil {
		return nil, errors.New("model returned no result")
	}
	return gen, nil
}

func (o *Orchestrator) execute(ctx context.Context, call *tools.ToolCall) tools.Result {
	start := time.Now()
	res := o.executor.Execute(ctx, call)
	log.Info(ctx,
		log.KV{K: "msg", V: "tool executed"},
		log.KV{K: "tool", V: call.Function.Name},
		log.KV{K: "call_id", V: call.ID},
		log.KV{K: "is_error", V: res.IsError},
		log.KV{K: "duration_ms", V: time.Since(start).Milliseconds()},
	)
	return res
}

// withCallIDs drops nil calls and assigns an id to any call the provider
// left without one.
func withCallIDs(calls []*tools.ToolCall) []*tools.ToolCall {
	out := make([]*tools.ToolCall, 0, len(calls))
	for _, call := range calls {
		if call == nil {
			continue
		}
		if call.ID == "" {
			c := *call
			c.ID = "call_" + uuid.NewString()
			call = &c
		}
		out = append(out, call)
	}
	return out
}
