// In file: internal/agents/runner.go
package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/orchestrator"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

// Run is the record of one agent execution. Failed runs are recorded too,
// with Error set and Partial holding whatever the terminal tool produced.
type Run struct {
	ID         string               `json:"id"`
	Agent      string               `json:"agent"`
	Model      string               `json:"model"`
	Input      json.RawMessage      `json:"input,omitempty"`
	Result     *orchestrator.Result `json:"result,omitempty"`
	Partial    orchestrator.Report  `json:"partial,omitempty"`
	Error      string               `json:"error,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

// Succeeded reports whether the run produced a report.
func (r *Run) Succeeded() bool {
	return r.Error == "" && r.Result != nil
}

// AgentInfo describes a catalog agent for listings.
type AgentInfo struct {
	Name         string   `json:"name"`
	Title        string   `json:"title"`
	Model        string   `json:"model"`
	TerminalTool string   `json:"terminal_tool"`
	Tools        []string `json:"tools"`
}

// Runner binds the agent catalog to LLM clients. It is safe for concurrent use.
type Runner struct {
	clients    *llm.Clients
	deps       Deps
	registries map[string]*tools.Registry
	configs    map[string]orchestrator.Config
}

type runnerOptions struct {
	registryFS fs.FS
	configs    map[string]orchestrator.Config
}

// RunnerOption customizes a Runner.
type RunnerOption func(*runnerOptions)

// WithRegistryFS loads tool registries from fsys instead of the embedded set.
func WithRegistryFS(fsys fs.FS) RunnerOption {
	return func(o *runnerOptions) {
		o.registryFS = fsys
	}
}

// WithAgentConfig overrides run settings for one agent. Zero fields keep the
// agent's defaults.
func WithAgentConfig(agent string, config orchestrator.Config) RunnerOption {
	return func(o *runnerOptions) {
		o.configs[agent] = config
	}
}

// NewRunner loads every registry up front so a broken registry fails at startup.
func NewRunner(clients *llm.Clients, deps Deps, opts ...RunnerOption) (*Runner, error) {
	if clients == nil {
		return nil, errors.New("agents: LLM clients are nil")
	}
	o := runnerOptions{configs: make(map[string]orchestrator.Config)}
	for _, opt := range opts {
		opt(&o)
	}
	for name := range o.configs {
		if _, err := Lookup(name); err != nil {
			return nil, err
		}
	}
	deps = deps.withDefaults()
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	if o.registryFS == nil {
		fsys, err := RegistryFS("")
		if err != nil {
			return nil, err
		}
		o.registryFS = fsys
	}
	registries, err := LoadRegistries(o.registryFS)
	if err != nil {
		return nil, err
	}
	return &Runner{
		clients:    clients,
		deps:       deps,
		registries: registries,
		configs:    o.configs,
	}, nil
}

// Agents lists the catalog with the effective model of each agent.
func (r *Runner) Agents() []AgentInfo {
	out := make([]AgentInfo, 0, len(r.registries))
	for _, def := range Catalog() {
		out = append(out, AgentInfo{
			Name:         def.Name,
			Title:        def.Title,
			Model:        r.config(def, "").Model,
			TerminalTool: def.TerminalTool,
			Tools:        r.registries[def.Name].Names(),
		})
	}
	return out
}

// Tools returns the tool definitions an agent offers the model.
func (r *Runner) Tools(agent string) ([]tools.Tool, error) {
	if _, err := Lookup(agent); err != nil {
		return nil, err
	}
	return r.registries[agent].Definitions(), nil
}

// Config returns the effective run settings for agent when run with model.
// An empty model selects the configured or built-in default.
func (r *Runner) Config(agent, model string) (orchestrator.Config, error) {
	def, err := Lookup(agent)
	if err != nil {
		return orchestrator.Config{}, err
	}
	return r.config(def, model), nil
}

// Prepared is an accepted request: the first-turn message rendered from the
// input and the effective run settings.
type Prepared struct {
	Agent   string
	Message string
	Config  orchestrator.Config
	// Date is the day the handlers stamp into tickets and reports.
	Date time.Time
}

// Prepare validates input and renders the first-turn message without calling
// a model. Two requests with equal Prepared values produce equivalent runs.
func (r *Runner) Prepare(agent string, input json.RawMessage, model string) (*Prepared, error) {
	_, prepared, err := r.prepare(agent, input, model)
	return prepared, err
}

// Run executes agent with input. The returned Run is non-nil whenever the
// agent exists and its input was accepted, even if the run failed.
func (r *Runner) Run(ctx context.Context, agent string, input json.RawMessage, model string) (*Run, error) {
	def, prepared, err := r.prepare(agent, input, model)
	if err != nil {
		return nil, err
	}
	message, config := prepared.Message, prepared.Config
	client, err := r.clients.ForModel(config.Model)
	if err != nil {
		return nil, err
	}
	manager, err := tools.NewToolManager(r.registries[def.Name], def.Handlers(r.depsOn(prepared.Date)))
	if err != nil {
		return nil, err
	}
	orch, err := orchestrator.New(client, manager, def.SystemPrompt, config)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Agent:     def.Name,
		Model:     config.Model,
		Input:     input,
		StartedAt: time.Now().UTC(),
	}
	ctx = log.With(ctx, log.KV{K: "agent", V: def.Name}, log.KV{K: "run_id", V: run.ID})
	log.Info(ctx, log.KV{K: "msg", V: "agent run started"}, log.KV{K: "model", V: config.Model})

	result, err := orch.Run(ctx, message)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
		var limitErr *orchestrator.TurnLimitError
		if errors.As(err, &limitErr) {
			run.Partial = limitErr.Partial
		}
		log.Error(ctx, err, log.KV{K: "msg", V: "agent run failed"})
		return run, fmt.Errorf("agent %s: %w", def.Name, err)
	}
	run.Result = result
	log.Info(ctx,
		log.KV{K: "msg", V: "agent run finished"},
		log.KV{K: "source", V: string(result.Source)},
		log.KV{K: "turns", V: result.Turns},
		log.KV{K: "duration_ms", V: run.FinishedAt.Sub(run.StartedAt).Milliseconds()},
	)
	return run, nil
}

// --- Helper Functions ---

func (r *Runner) prepare(agent string, input json.RawMessage, model string) (Definition, *Prepared, error) {
	def, err := Lookup(agent)
	if err != nil {
		return Definition{}, nil, err
	}
	date := r.deps.today()
	message, err := def.BuildMessage(input, r.depsOn(date))
	if err != nil {
		return Definition{}, nil, err
	}
	return def, &Prepared{
		Agent:   def.Name,
		Message: message,
		Config:  r.config(def, model),
		Date:    date,
	}, nil
}

// depsOn pins the clock to date so the message and the handlers of one run
// agree on "today".
func (r *Runner) depsOn(date time.Time) Deps {
	deps := r.deps
	deps.Clock = func() time.Time { return date }
	return deps
}

func (r *Runner) config(def Definition, model string) orchestrator.Config {
	config := r.configs[def.Name]
	if model != "" {
		config.Model = model
	}
	if config.Model == "" {
		config.Model = def.DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.DefaultMaxTokens
	}
	if config.FallbackKey == "" {
		config.FallbackKey = def.FallbackKey
	}
	return config
}
