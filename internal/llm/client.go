// In file: internal/llm/client.go
package llm

import (
	"context"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

// =================================================================================
// Core Data Structures
// =================================================================================

// Role represents the originator of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a transcript.
//
// Assistant turns that request tools carry ToolCalls. Tool turns carry the
// result of exactly one call: ToolCallID correlates it with the request,
// ToolName is needed by providers that correlate by name, and IsError marks
// results produced from a failure.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolName   string            `json:"tool_name,omitempty"`
	IsError    bool              `json:"is_error,omitempty"`
	ToolCalls  []*tools.ToolCall `json:"tool_calls,omitempty"`
}

// GenerationConfig holds the parameters that control a single completion.
type GenerationConfig struct {
	// The model to use (e.g., "gpt-4o", "claude-opus-4-6").
	Model string
	// Controls randomness. A nil pointer leaves the provider default.
	Temperature *float32
	// Upper bound on generated tokens. Zero selects defaultMaxTokens.
	MaxTokens int
	// Nucleus sampling. A nil pointer leaves the provider default.
	TopP *float32
}

// Usage aggregates token counts.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// GenerationResult holds the complete output of one completion call.
type GenerationResult struct {
	// The generated text content from the model.
	Content string
	// Tool invocations requested by the model, in the order it listed them.
	ToolCalls []*tools.ToolCall
	// Provider stop reason ("end_turn", "tool_use", "stop", ...), informational only.
	StopReason string
	// Token usage statistics for the request.
	Usage Usage
}

// =================================================================================
// LLM Client Interface
// =================================================================================

// LLMClient is the narrow capability the orchestrator needs from a model
// provider: given the transcript and the offered tools, return either final
// text or a set of tool invocations.
//
// A system message anywhere in messages is treated as the system prompt;
// adapters move it to the provider's dedicated field when there is one.
type LLMClient interface {
	Generate(
		ctx context.Context,
		messages []Message,
		config *GenerationConfig,
		availableTools []tools.Tool,
	) (*GenerationResult, error)
}

// systemPrompt joins the content of every system message.
func systemPrompt(messages []Message) string {
	var out string
	for _, m := range messages {
		if m.Role != RoleSystem || m.Content == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

func maxTokensOrDefault(config *GenerationConfig) int {
	if config != nil && config.MaxTokens > 0 {
		return config.MaxTokens
	}
	return defaultMaxTokens
}
