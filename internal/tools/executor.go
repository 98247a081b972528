// In file: internal/tools/executor.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler implements one tool. It receives the raw JSON arguments produced by
// the model (already checked against the tool's input schema) and returns a
// value that is marshalled to JSON and sent back to the model.
//
// Handlers must be deterministic for a given backing data source. An error is
// reported to the model as an error result; it never aborts a run.
type Handler func(ctx context.Context, input json.RawMessage) (any, error)

// Handlers is the lookup table from tool name to implementation.
type Handlers map[string]Handler

// Result is the outcome of one tool call, correlated by CallID.
type Result struct {
	CallID string
	Name   string
	// Output is always a valid JSON document. For failures it is an object
	// with an "error" member.
	Output  json.RawMessage
	IsError bool
}

// Content returns the output as the string payload providers expect.
func (r Result) Content() string {
	return string(r.Output)
}

// errorPayload is what the model sees when a call fails.
type errorPayload struct {
	Error string `json:"error"`
	Tool  string `json:"tool"`
}

func errorResult(res Result, msg string) Result {
	out, err := json.Marshal(errorPayload{Error: msg, Tool: res.Name})
	if err != nil {
		out = []byte(fmt.Sprintf(`{"error":%q}`, msg))
	}
	res.Output = out
	res.IsError = true
	return res
}

// DecodeInput unmarshals handler arguments into T, wrapping failures in
// ErrValidation so the model is told its arguments were unusable.
func DecodeInput[T any](input json.RawMessage) (T, error) {
	var v T
	if len(input) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(input, &v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return v, nil
}
