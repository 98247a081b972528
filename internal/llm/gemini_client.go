// In file: internal/llm/gemini_client.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiClient is the client for Google's Gemini models.
//
// A fresh GenerativeModel is configured per call, so concurrent runs with
// different models or tools never share mutable settings.
type GeminiClient struct {
	client *genai.Client
}

var _ LLMClient = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Generate performs a standard, blocking request to the Gemini API.
func (c *GeminiClient) Generate(
	ctx context.Context,
	messages []Message,
	config *GenerationConfig,
	availableTools []tools.Tool,
) (*GenerationResult, error) {
	if config == nil || config.Model == "" {
		return nil, invalidResponse(providerGemini, "model is required")
	}
	model := c.client.GenerativeModel(config.Model)
	configureModel(model, messages, config, availableTools)

	contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return nil, &ProviderError{Provider: providerGemini, Kind: KindInvalidRequest, Err: errors.New("transcript has no user turn")}
	}
	chat := model.StartChat()
	chat.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	return parseGeminiResponse(resp)
}

// configureModel applies settings using the SDK's setter methods.
func configureModel(model *genai.GenerativeModel, messages []Message, config *GenerationConfig, availableTools []tools.Tool) {
	if system := systemPrompt(messages); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if config.Temperature != nil {
		model.SetTemperature(*config.Temperature)
	}
	if config.TopP != nil {
		model.SetTopP(*config.TopP)
	}
	model.SetMaxOutputTokens(int32(maxTokensOrDefault(config)))
	if len(availableTools) > 0 {
		model.Tools = toGeminiTools(availableTools)
	}
}

// toGeminiTools puts every declaration into one Tool, which is how Gemini
// expects a set of functions to be offered together.
func toGeminiTools(toolsToConvert []tools.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(toolsToConvert))
	for _, t := range toolsToConvert {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  convertSchema(&t.Function.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema converts our JSONSchema to the Gemini SDK's schema type.
func convertSchema(s *tools.JSONSchema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Format:      s.Format,
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, v := range s.Properties {
			out.Properties[k] = convertSchema(v)
		}
	}
	if s.Items != nil {
		out.Items = convertSchema(s.Items)
	}
	// Gemini only accepts enum and date-time formats on strings.
	if out.Type != genai.TypeString || (out.Format != "" && out.Format != "enum" && out.Format != "date-time") {
		out.Format = ""
	}
	if len(out.Enum) > 0 {
		out.Format = "enum"
	}
	return out
}

// toGeminiContents converts the transcript. Tool results become
// FunctionResponse parts; consecutive results share one content entry.
func toGeminiContents(messages []Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			continue
		case RoleTool:
			part := genai.FunctionResponse{Name: msg.ToolName, Response: toResponseMap(msg.Content)}
			if n := len(out); n > 0 && out[n-1].Role == "user" && isFunctionResponses(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		case RoleAssistant:
			content := &genai.Content{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, genai.FunctionCall{Name: call.Function.Name, Args: toResponseMap(call.Function.Arguments)})
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	return out
}

func isFunctionResponses(c *genai.Content) bool {
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return true
}

// toResponseMap decodes a JSON object. Anything else is wrapped as {"result": v}.
func toResponseMap(raw string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"result": raw}
}

// parseGeminiResponse converts a Gemini API response into our GenerationResult.
// Gemini does not assign call ids, so one is generated per call.
func parseGeminiResponse(resp *genai.GenerateContentResponse) (*GenerationResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, invalidResponse(providerGemini, "no content returned")
	}
	candidate := resp.Candidates[0]
	var text strings.Builder
	var toolCalls []*tools.ToolCall
	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, invalidResponse(providerGemini, "encode arguments for %s: %v", v.Name, err)
			}
			if v.Args == nil {
				args = []byte("{}")
			}
			toolCalls = append(toolCalls, tools.NewToolCall("call_"+uuid.NewString(), v.Name, string(args)))
		}
	}
	result := &GenerationResult{
		Content:    strings.TrimSpace(text.String()),
		ToolCalls:  toolCalls,
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		result.Usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.Usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.Usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return result, nil
}

func classifyGeminiError(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return newProviderError(providerGemini, apiErr.HTTPCode(), err)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return newProviderError(providerGemini, gErr.Code, err)
	}
	return newProviderError(providerGemini, 0, err)
}
