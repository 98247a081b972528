// In file: internal/config/config.go

// Package config loads gateway settings from a .env file, the environment and
// config.yaml, and turns them into the options of the agent runner.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"goa.design/clue/log"
	"gopkg.in/yaml.v3"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/orchestrator"
)

// DefaultPath is read when neither an explicit path nor CONFIG_PATH is set.
const DefaultPath = "config.yaml"

// ErrInvalidConfig marks settings that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// AgentConfig overrides the run settings of one agent. Zero values keep the
// agent's built-in defaults.
type AgentConfig struct {
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float32      `yaml:"temperature"`
	MaxTurns    int           `yaml:"max_turns"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	FallbackKey string        `yaml:"fallback_key"`
}

// ScheduleEntry is one recurring agent run.
type ScheduleEntry struct {
	Name  string         `yaml:"name"`
	Agent string         `yaml:"agent"`
	Cron  string         `yaml:"cron"`
	Input map[string]any `yaml:"input"`
}

// ConformityConfig holds the Annex VI checklist.
type ConformityConfig struct {
	Obligations []agents.Obligation `yaml:"obligations"`
}

// Config is the complete gateway configuration.
type Config struct {
	Agents     map[string]AgentConfig `yaml:"agents"`
	Retry      llm.RetryPolicy        `yaml:"retry"`
	Fairness   fairness.Policy        `yaml:"fairness"`
	Conformity ConformityConfig       `yaml:"conformity"`
	Schedule   []ScheduleEntry        `yaml:"schedule"`
	// RegistryDir overrides the embedded tool registries when set.
	RegistryDir string `yaml:"registry_dir"`
	// ReportTTL is how long stored runs and cache entries live in Redis.
	ReportTTL time.Duration `yaml:"report_ttl"`
	// HealthCheckInterval enables periodic model pings. Zero disables them.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// Populated from the environment.
	APIKeys   llm.APIKeys `yaml:"-"`
	RedisAddr string      `yaml:"-"`
	Port      string      `yaml:"-"`
	Debug     bool        `yaml:"-"`
	// AIModel replaces the model of every agent that defaults to OpenAI.
	AIModel string `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agents:     map[string]AgentConfig{},
		Retry:      llm.DefaultRetryPolicy(),
		Fairness:   fairness.DefaultPolicy(),
		Conformity: ConformityConfig{Obligations: agents.DefaultObligations()},
		Schedule: []ScheduleEntry{
			{Name: "weekly-bias-watch", Agent: "bias_watch", Cron: "CRON_TZ=Europe/Amsterdam 0 7 * * MON"},
		},
		ReportTTL: 30 * 24 * time.Hour,
		Port:      "8080",
	}
}

// Load reads .env (outside release mode), the YAML file and the environment.
// An empty path falls back to CONFIG_PATH, then DefaultPath; only an explicitly
// named file is required to exist.
func Load(ctx context.Context, path string) (*Config, error) {
	// In Docker (GIN_MODE=release) the environment is provided directly.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Debug(ctx, log.KV{K: "msg", V: "no .env file found, relying on the environment"})
		}
	}

	required := true
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path, required = DefaultPath, false
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
		log.Info(ctx, log.KV{K: "msg", V: "config file not found, using defaults"}, log.KV{K: "path", V: path})
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	c.APIKeys = llm.APIKeys{
		Anthropic: getenv("ANTHROPIC_API_KEY"),
		OpenAI:    getenv("OPENAI_API_KEY"),
		Mistral:   getenv("MISTRAL_API_KEY"),
		Gemini:    getenv("GEMINI_API_KEY"),
	}
	c.RedisAddr = getenv("REDIS_ADDR")
	c.AIModel = getenv("AI_MODEL")
	if port := getenv("PORT"); port != "" {
		c.Port = port
	}
	if v := getenv("DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: DEBUG=%q: %w", ErrInvalidConfig, v, err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate checks every section against the agent catalog.
func (c *Config) Validate() error {
	for name, a := range c.Agents {
		if _, err := agents.Lookup(name); err != nil {
			return fmt.Errorf("%w: agents: %w", ErrInvalidConfig, err)
		}
		if a.MaxTokens < 0 || a.MaxTurns < 0 || a.CallTimeout < 0 {
			return fmt.Errorf("%w: agents.%s: limits must not be negative", ErrInvalidConfig, name)
		}
		if a.Model != "" {
			if _, ok := llm.ProviderForModel(a.Model); !ok {
				return fmt.Errorf("%w: agents.%s: unknown provider for model %q", ErrInvalidConfig, name, a.Model)
			}
		}
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.InitialBackoff < 0 || c.Retry.Jitter < 0 {
		return fmt.Errorf("%w: retry: max_attempts must be >= 1 and delays non-negative", ErrInvalidConfig)
	}
	if err := c.Deps().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	seen := make(map[string]bool, len(c.Schedule))
	for i, e := range c.Schedule {
		if e.Name == "" {
			return fmt.Errorf("%w: schedule[%d]: name is required", ErrInvalidConfig, i)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: schedule: %q listed twice", ErrInvalidConfig, e.Name)
		}
		seen[e.Name] = true
		if _, err := agents.Lookup(e.Agent); err != nil {
			return fmt.Errorf("%w: schedule %s: %w", ErrInvalidConfig, e.Name, err)
		}
		if _, err := cron.ParseStandard(e.Cron); err != nil {
			return fmt.Errorf("%w: schedule %s: %w", ErrInvalidConfig, e.Name, err)
		}
	}
	if c.ReportTTL < 0 || c.HealthCheckInterval < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Deps returns the agent dependencies with the configured policy and checklist.
func (c *Config) Deps() agents.Deps {
	deps := agents.DefaultDeps()
	deps.Policy = c.Fairness
	deps.Obligations = c.Conformity.Obligations
	return deps
}

// AgentRunConfig returns the orchestrator overrides for one agent, with the
// AI_MODEL override applied to agents whose default model is served by OpenAI.
func (c *Config) AgentRunConfig(def agents.Definition) orchestrator.Config {
	a := c.Agents[def.Name]
	model := a.Model
	if model == "" && c.AIModel != "" {
		if provider, _ := llm.ProviderForModel(def.DefaultModel); provider == "openai" {
			model = c.AIModel
		}
	}
	return orchestrator.Config{
		Model:       model,
		MaxTokens:   a.MaxTokens,
		Temperature: a.Temperature,
		MaxTurns:    a.MaxTurns,
		CallTimeout: a.CallTimeout,
		FallbackKey: a.FallbackKey,
	}
}

// RunnerOptions turns the configuration into agents.Runner options.
func (c *Config) RunnerOptions() ([]agents.RunnerOption, error) {
	var opts []agents.RunnerOption
	for _, def := range agents.Catalog() {
		opts = append(opts, agents.WithAgentConfig(def.Name, c.AgentRunConfig(def)))
	}
	if c.RegistryDir != "" {
		fsys, err := agents.RegistryFS(c.RegistryDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, agents.WithRegistryFS(fsys))
	}
	return opts, nil
}
