// In file: internal/llm/openai_client.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	openai "github.com/sashabaranov/go-openai"
)

// ChatClient captures the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to any Chat Completions compatible endpoint. The
// provider name only affects error messages and profiling labels.
type OpenAIClient struct {
	chat     ChatClient
	provider string
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for api.openai.com.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai API key cannot be empty")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	return &OpenAIClient{chat: openai.NewClientWithConfig(cfg), provider: providerOpenAI}, nil
}

// NewOpenAIClientWith wraps an existing ChatClient.
func NewOpenAIClientWith(chat ChatClient, provider string) *OpenAIClient {
	if provider == "" {
		provider = providerOpenAI
	}
	return &OpenAIClient{chat: chat, provider: provider}
}

func (c *OpenAIClient) Generate(ctx context.Context, messages []Message, config *GenerationConfig, availableTools []tools.Tool) (*GenerationResult, error) {
	if config == nil || config.Model == "" {
		return nil, invalidResponse(c.provider, "model is required")
	}
	req := openai.ChatCompletionRequest{
		Model:     config.Model,
		Messages:  toOpenAIMessages(messages),
		MaxTokens: maxTokensOrDefault(config),
		Tools:     toOpenAITools(availableTools),
	}
	if config.Temperature != nil {
		req.Temperature = *config.Temperature
		// go-openai omits a zero temperature, which the API reads as 1.
		if req.Temperature == 0 {
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if config.TopP != nil {
		req.TopP = *config.TopP
	}
	resp, err := c.chat.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, c.classify(err)
	}
	return c.parseResponse(resp)
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		m := openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content}
		switch msg.Role {
		case RoleTool:
			m.Role = openai.ChatMessageRoleTool
			m.ToolCallID = msg.ToolCallID
		case RoleAssistant:
			for _, call := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					},
				})
			}
		}
		out = append(out, m)
	}
	return out
}

func toOpenAITools(toolsToConvert []tools.Tool) []openai.Tool {
	if len(toolsToConvert) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(toolsToConvert))
	for _, t := range toolsToConvert {
		params := t.Function.Parameters
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func (c *OpenAIClient) parseResponse(resp openai.ChatCompletionResponse) (*GenerationResult, error) {
	if len(resp.Choices) == 0 {
		return nil, invalidResponse(c.provider, "no choices returned")
	}
	choice := resp.Choices[0]
	result := &GenerationResult{
		Content:    strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for i, call := range choice.Message.ToolCalls {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		result.ToolCalls = append(result.ToolCalls, tools.NewToolCall(id, call.Function.Name, call.Function.Arguments))
	}
	return result, nil
}

func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newProviderError(c.provider, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newProviderError(c.provider, reqErr.HTTPStatusCode, err)
	}
	return newProviderError(c.provider, 0, err)
}
