package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func sampleTool() tools.Tool {
	return tools.NewFunctionTool("publish_fairness_report", "Publish the report.", tools.JSONSchema{
		Type:       "object",
		Properties: map[string]*tools.JSONSchema{"week": {Type: "string"}},
	})
}

func TestAnthropicGenerateEncodesTranscript(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: `{"status":"PUBLISHED"}`}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	client := NewAnthropicClientWith(stub)

	messages := []Message{
		{Role: RoleSystem, Content: "You are BiasWatchAgent."},
		{Role: RoleUser, Content: "Run the weekly report."},
		{Role: RoleAssistant, ToolCalls: []*tools.ToolCall{
			tools.NewToolCall("tu_1", "query_decision_log", `{"start_date":"2026-02-16"}`),
			tools.NewToolCall("tu_2", "publish_fairness_report", ``),
		}},
		{Role: RoleTool, ToolCallID: "tu_1", ToolName: "query_decision_log", Content: `{"total_decisions":347}`},
		{Role: RoleTool, ToolCallID: "tu_2", ToolName: "publish_fairness_report", Content: `{"error":"boom"}`, IsError: true},
	}
	res, err := client.Generate(context.Background(), messages, &GenerationConfig{Model: "claude-opus-4-6", MaxTokens: 8096}, []tools.Tool{sampleTool()})
	require.NoError(t, err)

	p := stub.lastParams
	assert.Equal(t, sdk.Model("claude-opus-4-6"), p.Model)
	assert.EqualValues(t, 8096, p.MaxTokens)
	require.Len(t, p.System, 1)
	assert.Equal(t, "You are BiasWatchAgent.", p.System[0].Text)

	require.Len(t, p.Messages, 3, "user, assistant, grouped tool results")
	assert.Equal(t, sdk.MessageParamRoleUser, p.Messages[0].Role)
	assert.Equal(t, sdk.MessageParamRoleAssistant, p.Messages[1].Role)
	require.Len(t, p.Messages[1].Content, 2)
	require.NotNil(t, p.Messages[1].Content[0].OfToolUse)
	assert.Equal(t, "tu_1", p.Messages[1].Content[0].OfToolUse.ID)
	assert.Equal(t, sdk.MessageParamRoleUser, p.Messages[2].Role)
	require.Len(t, p.Messages[2].Content, 2)
	require.NotNil(t, p.Messages[2].Content[1].OfToolResult)
	assert.Equal(t, "tu_2", p.Messages[2].Content[1].OfToolResult.ToolUseID)

	require.Len(t, p.Tools, 1)
	require.NotNil(t, p.Tools[0].OfTool)
	assert.Equal(t, "publish_fairness_report", p.Tools[0].OfTool.Name)

	assert.Equal(t, `{"status":"PUBLISHED"}`, res.Content)
	assert.Empty(t, res.ToolCalls)
	assert.Equal(t, "end_turn", res.StopReason)
	assert.Equal(t, Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, res.Usage)
}

func TestAnthropicGenerateParsesToolUse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Querying the log."},
			{Type: "tool_use", ID: "tu_9", Name: "query_decision_log", Input: json.RawMessage(`{"start_date":"2026-02-16","end_date":"2026-02-23"}`)},
		},
		StopReason: sdk.StopReasonToolUse,
	}}
	res, err := NewAnthropicClientWith(stub).Generate(context.Background(),
		[]Message{{Role: RoleUser, Content: "go"}}, &GenerationConfig{Model: "claude-opus-4-6"}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, defaultMaxTokens, stub.lastParams.MaxTokens)
	assert.Empty(t, stub.lastParams.System)
	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "tu_9", res.ToolCalls[0].ID)
	assert.Equal(t, "query_decision_log", res.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"start_date":"2026-02-16","end_date":"2026-02-23"}`, res.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "Querying the log.", res.Content)
}

func TestAnthropicGenerateRequiresModel(t *testing.T) {
	_, err := NewAnthropicClientWith(&stubMessagesClient{}).Generate(context.Background(), nil, &GenerationConfig{}, nil)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Retryable())
}

func TestClassifyAnthropicError(t *testing.T) {
	err := classifyAnthropicError(fmt.Errorf("post: %w", &sdk.Error{StatusCode: 529}))
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindUnavailable, pe.Kind)
	assert.Equal(t, 529, pe.StatusCode)
	assert.True(t, IsRetryable(err))

	err = classifyAnthropicError(fmt.Errorf("post: %w", &sdk.Error{StatusCode: 401}))
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindAuth, pe.Kind)
	assert.False(t, IsRetryable(err))
}
