// In file: internal/agents/agent.go

// Package agents defines the five compliance agents: their prompts, their
// tool handlers and the inputs they accept. A Runner binds them to an LLM
// client and the orchestrator.
package agents

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

var (
	// ErrUnknownAgent is returned for an agent name that is not in the catalog.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrInvalidInput is returned when a caller's agent input is unusable.
	ErrInvalidInput = errors.New("invalid agent input")
)

// Check outcomes shared by the conformity tools.
const (
	StatusPass    = "PASS"
	StatusPartial = "PARTIAL"
	StatusFail    = "FAIL"
)

const dateLayout = "2006-01-02"

// Definition is everything needed to run one agent.
type Definition struct {
	Name  string
	Title string
	// RegistryFile names the agent's tool registry inside the registry FS.
	RegistryFile string
	// TerminalTool must be flagged terminal in the registry.
	TerminalTool     string
	SystemPrompt     string
	FallbackKey      string
	DefaultModel     string
	DefaultMaxTokens int
	// BuildMessage checks the caller's input and renders the first user turn.
	BuildMessage func(input json.RawMessage, deps Deps) (string, error)
	// Handlers builds a fresh handler table for one run.
	Handlers func(deps Deps) tools.Handlers
}

// Catalog returns every agent definition, sorted by name.
func Catalog() []Definition {
	return []Definition{
		BiasWatch(),
		Classify(),
		Conformity(),
		DocDraft(),
		FRIA(),
	}
}

// Lookup returns the named definition.
func Lookup(name string) (Definition, error) {
	for _, def := range Catalog() {
		if def.Name == name {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
}

// --- Helper Functions ---

// decodeAgentInput unmarshals caller input strictly. Empty input decodes to
// the zero value so agents with all-optional inputs can run without a body.
func decodeAgentInput[T any](input json.RawMessage) (T, error) {
	var v T
	if len(input) == 0 || string(input) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return v, nil
}

func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	return nil
}

func encodeIndented(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
