// In file: internal/tools/registry.go
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolSpec is one record of a declarative tool registry file.
//
// Terminal marks the tool whose JSON output is the authoritative report of a
// run. It is an explicit capability tag so the orchestrator never has to guess
// from naming conventions.
type ToolSpec struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema JSONSchema `json:"input_schema"`
	Terminal    bool       `json:"terminal,omitempty"`
}

// Definition converts the spec into the Tool shape sent to a model.
func (s ToolSpec) Definition() Tool {
	return NewFunctionTool(s.Name, s.Description, s.InputSchema)
}

type registryEntry struct {
	spec   ToolSpec
	schema *jsonschema.Schema
}

// Registry is an immutable, validated set of ToolSpecs. Declaration order is
// preserved so the model sees tools in the order the registry file lists them.
type Registry struct {
	order   []string
	entries map[string]registryEntry
}

// NewRegistry validates specs and compiles their input schemas. Names must be
// unique and non-empty, and every input schema must be of type "object".
func NewRegistry(specs []ToolSpec) (*Registry, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: registry declares no tools", ErrRegistry)
	}
	r := &Registry{
		order:   make([]string, 0, len(specs)),
		entries: make(map[string]registryEntry, len(specs)),
	}
	var errs []error
	for i, spec := range specs {
		if spec.Name == "" {
			errs = append(errs, fmt.Errorf("tool #%d has no name", i))
			continue
		}
		if _, dup := r.entries[spec.Name]; dup {
			errs = append(errs, fmt.Errorf("tool %q declared more than once", spec.Name))
			continue
		}
		if spec.Description == "" {
			errs = append(errs, fmt.Errorf("tool %q has no description", spec.Name))
		}
		if spec.InputSchema.Type != "object" {
			errs = append(errs, fmt.Errorf("tool %q input schema type is %q, want \"object\"", spec.Name, spec.InputSchema.Type))
			continue
		}
		schema, err := compileSchema(spec.InputSchema)
		if err != nil {
			errs = append(errs, fmt.Errorf("tool %q: %w", spec.Name, err))
			continue
		}
		r.order = append(r.order, spec.Name)
		r.entries[spec.Name] = registryEntry{spec: spec, schema: schema}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrRegistry, errors.Join(errs...))
	}
	return r, nil
}

// ParseRegistry decodes a registry file (a JSON array of ToolSpec records).
func ParseRegistry(data []byte) (*Registry, error) {
	var specs []ToolSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("%w: decode registry: %w", ErrRegistry, err)
	}
	return NewRegistry(specs)
}

// LoadRegistry reads and parses a registry file from fsys.
func LoadRegistry(fsys fs.FS, name string) (*Registry, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", name, err)
	}
	r, err := ParseRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", name, err)
	}
	return r, nil
}

func compileSchema(s JSONSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode input schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile input schema: %w", err)
	}
	return schema, nil
}

// Specs returns the specs in declaration order.
func (r *Registry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.entries[name].spec)
	}
	return specs
}

// Definitions returns the model-facing definitions in declaration order.
func (r *Registry) Definitions() []Tool {
	defs := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].spec.Definition())
	}
	return defs
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	e, ok := r.entries[name]
	return e.spec, ok
}

// IsTerminal reports whether name is declared as a terminal tool.
func (r *Registry) IsTerminal(name string) bool {
	e, ok := r.entries[name]
	return ok && e.spec.Terminal
}

// TerminalTools lists the names of terminal tools in declaration order.
func (r *Registry) TerminalTools() []string {
	var names []string
	for _, name := range r.order {
		if r.entries[name].spec.Terminal {
			names = append(names, name)
		}
	}
	return names
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// Len returns the number of tools in the registry.
func (r *Registry) Len() int {
	return len(r.order)
}

// Validate checks a raw JSON input against the named tool's schema.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON: %w", ErrValidation, err)
	}
	if err := e.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
