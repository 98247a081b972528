// In file: cmd/gateway/handler.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
	"github.com/dileep-u-k/compliance-gateway/internal/app"
	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/orchestrator"
	"github.com/dileep-u-k/compliance-gateway/internal/store"
	"github.com/dileep-u-k/compliance-gateway/internal/version"
)

// =================================================================================
// Agent Gateway Handler
// =================================================================================
// Exposes the compliance agents over HTTP:
//   - POST /api/v1/agents/:agent/runs runs an agent (report cache first)
//   - GET  /api/v1/runs/:id and /api/v1/agents/:agent/runs read stored runs
//   - GET  /api/v1/models/:model/profile reads the model health profile
// =================================================================================

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// RunResponse is the body returned for an agent run.
type RunResponse struct {
	RunID       string              `json:"run_id"`
	Agent       string              `json:"agent"`
	Model       string              `json:"model"`
	Report      orchestrator.Report `json:"report,omitempty"`
	Source      orchestrator.Source `json:"source,omitempty"`
	Turns       int                 `json:"turns"`
	ToolCalls   int                 `json:"tool_calls"`
	Usage       llm.Usage           `json:"usage"`
	CacheStatus app.CacheStatus     `json:"cache_status"`
	LatencyMS   int64               `json:"latency_ms"`
	Partial     orchestrator.Report `json:"partial,omitempty"`
	Error       string              `json:"error,omitempty"`
}

type GatewayHandler struct {
	app *app.App
}

func NewGatewayHandler(a *app.App) *GatewayHandler {
	return &GatewayHandler{app: a}
}

// Register mounts every route on engine.
func (h *GatewayHandler) Register(engine *gin.Engine) {
	engine.GET("/healthz", h.HandleHealth)
	v1 := engine.Group("/api/v1")
	{
		v1.GET("/agents", h.HandleListAgents)
		v1.GET("/agents/:agent/tools", h.HandleListTools)
		v1.POST("/agents/:agent/runs", h.HandleRun)
		v1.GET("/agents/:agent/runs", h.HandleRecentRuns)
		v1.GET("/runs/:id", h.HandleGetRun)
		v1.GET("/models/:model/profile", h.HandleModelProfile)
		v1.GET("/version", h.HandleVersion)
	}
}

func (h *GatewayHandler) HandleHealth(c *gin.Context) {
	status := gin.H{"status": "ok"}
	if h.app.Store != nil {
		if err := h.app.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "redis: " + err.Error()})
			return
		}
		status["store"] = "ok"
	}
	c.JSON(http.StatusOK, status)
}

func (h *GatewayHandler) HandleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetBuildInfo())
}

func (h *GatewayHandler) HandleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": h.app.Runner.Agents()})
}

func (h *GatewayHandler) HandleListTools(c *gin.Context) {
	defs, err := h.app.Runner.Tools(c.Param("agent"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": c.Param("agent"), "tools": defs})
}

// HandleRun takes the agent input as the raw request body. Query parameters:
// model overrides the agent's model, cache=false forces a fresh run.
func (h *GatewayHandler) HandleRun(c *gin.Context) {
	startTime := time.Now()
	agent := c.Param("agent")

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: body is not valid JSON"})
		return
	}
	useCache := true
	if v := c.Query("cache"); v != "" {
		if useCache, err = strconv.ParseBool(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: cache must be a boolean"})
			return
		}
	}

	ctx := c.Request.Context()
	log.Info(ctx, log.KV{K: "msg", V: "agent run requested"}, log.KV{K: "agent", V: agent}, log.KV{K: "cache", V: useCache})

	run, cacheStatus, err := h.app.Run(ctx, agent, json.RawMessage(body), c.Query("model"), useCache)
	if err != nil && run == nil {
		writeError(c, err)
		return
	}
	resp := toRunResponse(run, cacheStatus, time.Since(startTime))
	if err != nil {
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *GatewayHandler) HandleGetRun(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	run, err := h.app.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *GatewayHandler) HandleRecentRuns(c *gin.Context) {
	agent := c.Param("agent")
	if _, err := agents.Lookup(agent); err != nil {
		writeError(c, err)
		return
	}
	if !h.requireStore(c) {
		return
	}
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	runs, err := h.app.Store.Recent(c.Request.Context(), agent, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent, "runs": runs})
}

func (h *GatewayHandler) HandleModelProfile(c *gin.Context) {
	if h.app.Profiler == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "model profiling requires REDIS_ADDR"})
		return
	}
	profile, err := h.app.Profiler.GetProfile(c.Request.Context(), c.Param("model"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// --- HELPER FUNCTIONS ---

func (h *GatewayHandler) requireStore(c *gin.Context) bool {
	if h.app.Store == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "run history requires REDIS_ADDR"})
		return false
	}
	return true
}

func toRunResponse(run *agents.Run, cacheStatus app.CacheStatus, latency time.Duration) RunResponse {
	resp := RunResponse{
		RunID:       run.ID,
		Agent:       run.Agent,
		Model:       run.Model,
		CacheStatus: cacheStatus,
		LatencyMS:   latency.Milliseconds(),
		Partial:     run.Partial,
		Error:       run.Error,
	}
	if r := run.Result; r != nil {
		resp.Report = r.Report
		resp.Source = r.Source
		resp.Turns = r.Turns
		resp.ToolCalls = r.ToolCalls
		resp.Usage = r.Usage
	}
	return resp
}

// statusFor maps run errors onto HTTP status codes.
func statusFor(err error) int {
	var providerErr *llm.ProviderError
	var retryErr *llm.RetryExhaustedError
	switch {
	case errors.Is(err, agents.ErrUnknownAgent), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, agents.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrTurnLimitExceeded), errors.Is(err, orchestrator.ErrCallTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrNoClient):
		return http.StatusServiceUnavailable
	case errors.As(err, &providerErr), errors.As(err, &retryErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(c.Request.Context(), err, log.KV{K: "msg", V: "request failed"}, log.KV{K: "path", V: c.FullPath()})
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
