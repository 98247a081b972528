// In file: internal/tools/types.go

// Package tools defines the provider-agnostic representation of tool use:
// the declarative ToolSpec records each agent loads from its registry file,
// the Tool definitions sent to a model, the ToolCall a model sends back, and
// the ToolManager that dispatches those calls to handler functions.
package tools

// ToolTypeFunction is the standard type for function-based tools.
const ToolTypeFunction = "function"

// Tool defines the schema for a function that can be described to an LLM.
// This is the information sent *to* the model to make it aware of a tool.
type Tool struct {
	// Type specifies the type of tool, which is always "function".
	Type string `json:"type"`
	// Function holds the detailed definition of the function.
	Function Function `json:"function"`
}

// Function defines the name, description, and parameters of a callable tool.
type Function struct {
	// Name is the name of the function to be called (e.g., "query_decision_log").
	Name string `json:"name"`
	// Description tells the model when the tool should be used.
	Description string `json:"description"`
	// Parameters defines the accepted arguments as a JSON Schema object.
	Parameters JSONSchema `json:"parameters"`
}

// JSONSchema is the subset of JSON Schema used by tool registries. It is
// typed rather than a free-form map so registry files are checked when they
// are decoded and adapters can translate it into each provider's format.
type JSONSchema struct {
	// Type is the JSON type of the node. For a tool's top-level input it
	// must be "object".
	Type string `json:"type,omitempty"`
	// Description explains what a parameter is for.
	Description string `json:"description,omitempty"`
	// Properties describes the members of an object node.
	Properties map[string]*JSONSchema `json:"properties,omitempty"`
	// Required lists the object members that must be present.
	Required []string `json:"required,omitempty"`
	// Items describes array elements.
	Items *JSONSchema `json:"items,omitempty"`
	// Enum restricts a string node to a fixed set of values.
	Enum []string `json:"enum,omitempty"`
	// Format is an advisory format such as "date".
	Format string `json:"format,omitempty"`
	// Minimum and Maximum bound numeric nodes.
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
}

// ToolCall represents a request *from* the LLM to execute a specific tool.
// The ID correlates the eventual result with this request.
type ToolCall struct {
	// ID is the provider-assigned correlation id for this call.
	ID string `json:"id"`
	// Type is always "function".
	Type string `json:"type"`
	// Function contains the name and raw JSON arguments.
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the name and arguments of a function call requested by the LLM.
type ToolCallFunction struct {
	// Name is the name of the function the LLM has decided to call.
	Name string `json:"name"`
	// Arguments is the JSON object the model produced for the call.
	Arguments string `json:"arguments"`
}

// NewFunctionTool is a helper that builds a Tool of type "function".
func NewFunctionTool(name, description string, parameters JSONSchema) Tool {
	return Tool{
		Type: ToolTypeFunction,
		Function: Function{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// NewToolCall builds a function ToolCall. It is mostly useful to adapters
// and tests.
func NewToolCall(id, name, arguments string) *ToolCall {
	return &ToolCall{
		ID:   id,
		Type: ToolTypeFunction,
		Function: ToolCallFunction{
			Name:      name,
			Arguments: arguments,
		},
	}
}
