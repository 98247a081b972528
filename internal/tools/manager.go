// In file: internal/tools/manager.go
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"goa.design/clue/log"
)

// ToolManager dispatches tool calls for one agent. It pairs a Registry with a
// handler table and guarantees that every declared tool has a handler and
// every handler has a declared tool.
type ToolManager struct {
	registry       *Registry
	handlers       Handlers
	validateInputs bool
}

// Option configures a ToolManager.
type Option func(*ToolManager)

// WithInputValidation toggles schema validation of call arguments. It is on
// by default.
func WithInputValidation(enabled bool) Option {
	return func(tm *ToolManager) {
		tm.validateInputs = enabled
	}
}

// NewToolManager checks the handler table against the registry in both
// directions and returns a manager ready to execute calls.
func NewToolManager(registry *Registry, handlers Handlers, opts ...Option) (*ToolManager, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is nil", ErrRegistry)
	}
	var errs []error
	for _, name := range registry.Names() {
		if h, ok := handlers[name]; !ok || h == nil {
			errs = append(errs, fmt.Errorf("tool %q has no handler", name))
		}
	}
	extra := make([]string, 0)
	for name := range handlers {
		if _, ok := registry.Lookup(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		errs = append(errs, fmt.Errorf("handler %q has no registry entry", name))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrRegistry, errors.Join(errs...))
	}

	tm := &ToolManager{
		registry:       registry,
		handlers:       make(Handlers, len(handlers)),
		validateInputs: true,
	}
	for name, h := range handlers {
		tm.handlers[name] = h
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// GetDefinitions returns the definitions offered to the model.
func (tm *ToolManager) GetDefinitions() []Tool {
	return tm.registry.Definitions()
}

// IsTerminal reports whether name is the agent's authoritative-output tool.
func (tm *ToolManager) IsTerminal(name string) bool {
	return tm.registry.IsTerminal(name)
}

// Execute runs a single call. It never returns an error and never panics:
// unknown tools, invalid arguments, handler errors and handler panics all
// become error Results so the conversation can continue.
func (tm *ToolManager) Execute(ctx context.Context, call *ToolCall) (res Result) {
	res = Result{CallID: call.ID, Name: call.Function.Name}

	handler, ok := tm.handlers[res.Name]
	if !ok {
		log.Warn(ctx, log.KV{K: "msg", V: "unknown tool requested"}, log.KV{K: "tool", V: res.Name})
		return errorResult(res, fmt.Sprintf("unknown tool: %s", res.Name))
	}

	input := json.RawMessage(bytes.TrimSpace([]byte(call.Function.Arguments)))
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if !json.Valid(input) {
		return errorResult(res, "arguments are not valid JSON")
	}
	if tm.validateInputs {
		if err := tm.registry.Validate(res.Name, input); err != nil {
			return errorResult(res, err.Error())
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error(ctx, fmt.Errorf("tool %s panicked: %v", res.Name, r), log.KV{K: "tool", V: res.Name})
			res = errorResult(Result{CallID: call.ID, Name: call.Function.Name}, fmt.Sprintf("internal error in tool %s", res.Name))
		}
	}()

	out, err := handler(ctx, input)
	if err != nil {
		return errorResult(res, err.Error())
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return errorResult(res, fmt.Sprintf("tool output could not be encoded: %v", err))
	}
	res.Output = encoded
	return res
}
