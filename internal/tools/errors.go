// In file: internal/tools/errors.go
package tools

import "errors"

var (
	// ErrToolNotFound is reported when a model calls a tool the agent does not offer.
	ErrToolNotFound = errors.New("tool not found")
	// ErrValidation is reported when tool arguments do not satisfy the tool's input schema
	// or a handler rejects them.
	ErrValidation = errors.New("invalid tool input")
	// ErrRegistry is reported when a registry file or the handler table is inconsistent.
	ErrRegistry = errors.New("invalid tool registry")
)
