package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
	"github.com/dileep-u-k/compliance-gateway/internal/app"
	"github.com/dileep-u-k/compliance-gateway/internal/config"
	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/llm/llmtest"
	"github.com/dileep-u-k/compliance-gateway/internal/orchestrator"
	"github.com/dileep-u-k/compliance-gateway/internal/store"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func publishScript() []llmtest.Step {
	return []llmtest.Step{
		llmtest.ToolCalls(tools.NewToolCall("c1", "publish_fairness_report", `{"week":"2026-W09","summary":"no breaches"}`)),
		llmtest.Text("Published."),
	}
}

func newTestServer(t *testing.T, client llm.LLMClient, withRedis bool) (*gin.Engine, *app.App) {
	t.Helper()
	opts := []app.Option{app.WithClients(llm.NewStaticClients(map[string]llm.LLMClient{"*": client}))}
	if withRedis {
		mr := miniredis.RunT(t)
		opts = append(opts, app.WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
	}
	a, err := app.New(context.Background(), config.Default(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	engine := gin.New()
	NewGatewayHandler(a).Register(engine)
	return engine, a
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeRun(t *testing.T, w *httptest.ResponseRecorder) RunResponse {
	t.Helper()
	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func TestHandleRunAndHistory(t *testing.T) {
	engine, _ := newTestServer(t, llmtest.NewScriptedClient(publishScript()...), true)

	w := serve(engine, http.MethodPost, "/api/v1/agents/bias_watch/runs", `{"start_date":"2026-02-16","end_date":"2026-02-23"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decodeRun(t, w)
	assert.Equal(t, "bias_watch", first.Agent)
	assert.Equal(t, app.CacheMiss, first.CacheStatus)
	assert.Equal(t, orchestrator.SourceTerminalTool, first.Source)
	assert.Equal(t, "PUBLISHED", first.Report["status"])
	assert.Equal(t, 1, first.ToolCalls)
	assert.NotEmpty(t, first.RunID)

	w = serve(engine, http.MethodPost, "/api/v1/agents/bias_watch/runs", `{"end_date":"2026-02-23","start_date":"2026-02-16"}`)
	require.Equal(t, http.StatusOK, w.Code)
	second := decodeRun(t, w)
	assert.Equal(t, app.CacheHit, second.CacheStatus)
	assert.Equal(t, first.RunID, second.RunID)

	w = serve(engine, http.MethodGet, "/api/v1/runs/"+first.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stored agents.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, first.RunID, stored.ID)

	w = serve(engine, http.MethodGet, "/api/v1/agents/bias_watch/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Agent string        `json:"agent"`
		Runs  []*agents.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Runs, 1)
}

func TestHandleRunBypassesCache(t *testing.T) {
	client := llmtest.NewScriptedClient(append(publishScript(), publishScript()...)...)
	engine, _ := newTestServer(t, client, true)

	for i := 0; i < 2; i++ {
		w := serve(engine, http.MethodPost, "/api/v1/agents/bias_watch/runs?cache=false", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, app.CacheDisabled, decodeRun(t, w).CacheStatus)
	}
	assert.Len(t, client.Calls(), 4)
}

func TestHandleRunModelOverride(t *testing.T) {
	client := llmtest.NewScriptedClient(publishScript()...)
	engine, _ := newTestServer(t, client, false)

	w := serve(engine, http.MethodPost, "/api/v1/agents/bias_watch/runs?model=gemini-1.5-pro", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "gemini-1.5-pro", decodeRun(t, w).Model)
	assert.Equal(t, "gemini-1.5-pro", client.Calls()[0].Config.Model)
}

func TestHandleRunRejectsBadRequests(t *testing.T) {
	engine, _ := newTestServer(t, llmtest.NewScriptedClient(), false)

	cases := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown agent", "/api/v1/agents/horoscope/runs", "", http.StatusNotFound},
		{"malformed json", "/api/v1/agents/classify/runs", `{"name":`, http.StatusBadRequest},
		{"missing field", "/api/v1/agents/classify/runs", `{"name":"CV screener"}`, http.StatusBadRequest},
		{"bad cache flag", "/api/v1/agents/classify/runs?cache=maybe", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(engine, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestHandleRunProviderFailure(t *testing.T) {
	failure := &llm.ProviderError{Provider: "openai", Kind: llm.KindAuth, StatusCode: 401, Err: errors.New("bad key")}
	engine, _ := newTestServer(t, llmtest.NewScriptedClient(llmtest.Fail(failure)), false)

	w := serve(engine, http.MethodPost, "/api/v1/agents/bias_watch/runs", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeRun(t, w)
	assert.NotEmpty(t, resp.RunID)
	assert.Contains(t, resp.Error, "bad key")
	assert.Nil(t, resp.Report)
}

func TestHandleListAgentsAndTools(t *testing.T) {
	engine, _ := newTestServer(t, llmtest.NewScriptedClient(), false)

	w := serve(engine, http.MethodGet, "/api/v1/agents", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Agents []agents.AgentInfo `json:"agents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Agents, len(agents.Catalog()))

	w = serve(engine, http.MethodGet, "/api/v1/agents/classify/tools", "")
	require.Equal(t, http.StatusOK, w.Code)
	var toolList struct {
		Tools []tools.Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &toolList))
	assert.Len(t, toolList.Tools, 4)

	w = serve(engine, http.MethodGet, "/api/v1/agents/horoscope/tools", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleStoreRoutes(t *testing.T) {
	engine, _ := newTestServer(t, llmtest.NewScriptedClient(), true)

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/runs/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(engine, http.MethodGet, "/api/v1/agents/fria/runs?limit=0", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/agents/horoscope/runs", "").Code)

	w := serve(engine, http.MethodGet, "/api/v1/models/gpt-4o/profile", "")
	require.Equal(t, http.StatusOK, w.Code)
	var profile llm.ModelProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, "gpt-4o", profile.ModelID)

	w = serve(engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"store":"ok"`)
}

func TestHandleStoreRoutesWithoutRedis(t *testing.T) {
	engine, _ := newTestServer(t, llmtest.NewScriptedClient(), false)

	assert.Equal(t, http.StatusNotImplemented, serve(engine, http.MethodGet, "/api/v1/runs/abc", "").Code)
	assert.Equal(t, http.StatusNotImplemented, serve(engine, http.MethodGet, "/api/v1/agents/fria/runs", "").Code)
	assert.Equal(t, http.StatusNotImplemented, serve(engine, http.MethodGet, "/api/v1/models/gpt-4o/profile", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/version", "").Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", agents.ErrUnknownAgent), http.StatusNotFound},
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", agents.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("agent fria: %w", &orchestrator.TurnLimitError{MaxTurns: 3}), http.StatusGatewayTimeout},
		{orchestrator.ErrCallTimeout, http.StatusGatewayTimeout},
		{fmt.Errorf("x: %w", llm.ErrNoClient), http.StatusServiceUnavailable},
		{&llm.RetryExhaustedError{Attempts: 3, LastError: errors.New("503")}, http.StatusBadGateway},
		{&llm.ProviderError{Provider: "gemini", Kind: llm.KindUnavailable, Err: errors.New("down")}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, statusFor(tc.err), tc.err.Error())
	}
}
