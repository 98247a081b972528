// In file: internal/llm/anthropic_client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// MessagesClient is the subset of the Anthropic SDK used by the adapter.
// *sdk.MessageService satisfies it; tests pass a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// --- Main Client ---

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	messages MessagesClient
}

var _ LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client with SDK retries disabled; retries are
// owned by RetryingClient so every provider follows the same policy.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic API key cannot be empty")
	}
	c := sdk.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(defaultTimeout),
	)
	return &AnthropicClient{messages: &c.Messages}, nil
}

// NewAnthropicClientWith wraps an existing MessagesClient.
func NewAnthropicClientWith(messages MessagesClient) *AnthropicClient {
	return &AnthropicClient{messages: messages}
}

func (c *AnthropicClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig, availableTools []tools.Tool) (*GenerationResult, error) {
	if config == nil || config.Model == "" {
		return nil, invalidResponse(providerAnthropic, "model is required")
	}
	params, err := buildAnthropicParams(messages, config, availableTools)
	if err != nil {
		return nil, &ProviderError{Provider: providerAnthropic, Kind: KindInvalidRequest, Err: err}
	}
	msg, err := c.messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	return parseAnthropicResponse(msg)
}

// --- Helper Functions ---

func buildAnthropicParams(messages []Message, config *GenerationConfig, availableTools []tools.Tool) (sdk.MessageNewParams, error) {
	conversation, err := toAnthropicMessages(messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(config.Model),
		MaxTokens: int64(maxTokensOrDefault(config)),
		Messages:  conversation,
	}
	if system := systemPrompt(messages); system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if config.Temperature != nil {
		params.Temperature = sdk.Float(float64(*config.Temperature))
	}
	if config.TopP != nil {
		params.TopP = sdk.Float(float64(*config.TopP))
	}
	toolParams, err := toAnthropicTools(availableTools)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	params.Tools = toolParams
	return params, nil
}

// toAnthropicMessages converts the transcript. Consecutive tool results are
// grouped into a single user turn, as the Messages API expects all results
// for one assistant turn to arrive together.
func toAnthropicMessages(messages []Message) ([]sdk.MessageParam, error) {
	var out []sdk.MessageParam
	var pendingResults []sdk.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) > 0 {
			out = append(out, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleTool:
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		case RoleUser:
			flush()
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		case RoleAssistant:
			flush()
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Function.Arguments)
				if len(strings.TrimSpace(call.Function.Arguments)) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, input, call.Function.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	flush()
	return out, nil
}

func toAnthropicTools(toolsToConvert []tools.Tool) ([]sdk.ToolUnionParam, error) {
	if len(toolsToConvert) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(toolsToConvert))
	for _, t := range toolsToConvert {
		raw, err := json.Marshal(t.Function.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s parameters: %w", t.Function.Name, err)
		}
		var schema map[string]any
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("decode tool %s parameters: %w", t.Function.Name, err)
		}
		inputSchema := sdk.ToolInputSchemaParam{
			Properties: schema["properties"],
			Required:   t.Function.Parameters.Required,
		}
		delete(schema, "type")
		delete(schema, "properties")
		delete(schema, "required")
		if len(schema) > 0 {
			inputSchema.ExtraFields = schema
		}
		u := sdk.ToolUnionParamOfTool(inputSchema, t.Function.Name)
		if u.OfTool != nil && t.Function.Description != "" {
			u.OfTool.Description = sdk.String(t.Function.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func parseAnthropicResponse(msg *sdk.Message) (*GenerationResult, error) {
	if msg == nil {
		return nil, invalidResponse(providerAnthropic, "response message is nil")
	}
	var text strings.Builder
	var toolCalls []*tools.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			toolCalls = append(toolCalls, tools.NewToolCall(block.ID, block.Name, args))
		}
	}
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &GenerationResult{
		Content:    strings.TrimSpace(text.String()),
		ToolCalls:  toolCalls,
		StopReason: string(msg.StopReason),
		Usage:      Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return newProviderError(providerAnthropic, apiErr.StatusCode, err)
	}
	return newProviderError(providerAnthropic, 0, err)
}
