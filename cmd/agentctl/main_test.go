package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
	"github.com/dileep-u-k/compliance-gateway/internal/app"
	"github.com/dileep-u-k/compliance-gateway/internal/config"
	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
	"github.com/dileep-u-k/compliance-gateway/internal/llm"
	"github.com/dileep-u-k/compliance-gateway/internal/llm/llmtest"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

func publishScript() []llmtest.Step {
	return []llmtest.Step{
		llmtest.ToolCalls(tools.NewToolCall("c1", "publish_fairness_report", `{"week":"2026-W09","summary":"no breaches"}`)),
		llmtest.Text("Published."),
	}
}

// testCLI returns a cli whose services run against client and a fresh
// miniredis instance.
func testCLI(t *testing.T, client llm.LLMClient) *cli {
	t.Helper()
	mr := miniredis.RunT(t)
	return &cli{
		loadConfig: func(context.Context, string) (*config.Config, error) {
			return config.Default(), nil
		},
		newApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg,
				app.WithClients(llm.NewStaticClients(map[string]llm.LLMClient{"*": client})),
				app.WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
			)
		},
	}
}

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeWithStderr(t, c, args...)
	return out, err
}

func executeWithStderr(t *testing.T, c *cli, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(c)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRunCommand(t *testing.T) {
	client := llmtest.NewScriptedClient(publishScript()...)
	inputPath := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(inputPath, []byte(`{"start_date":"2026-02-16","end_date":"2026-02-23"}`), 0o600))

	out, err := execute(t, testCLI(t, client), "run", "bias_watch", "--input", inputPath)
	require.NoError(t, err)

	var run agents.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), out)
	assert.Equal(t, "bias_watch", run.Agent)
	assert.True(t, run.Succeeded())
	assert.Equal(t, "PUBLISHED", run.Result.Report["status"])
	assert.JSONEq(t, `{"start_date":"2026-02-16","end_date":"2026-02-23"}`, string(run.Input))
}

func TestRunCommandReportOnlyFromStdin(t *testing.T) {
	client := llmtest.NewScriptedClient(publishScript()...)
	c := testCLI(t, client)

	var out bytes.Buffer
	cmd := newRootCmd(c)
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(bytes.NewBufferString(`{"start_date":"2026-02-16"}`))
	cmd.SetArgs([]string{"run", "bias_watch", "--input", "-", "--report-only", "--model", "gpt-4o"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var report map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), out.String())
	assert.Equal(t, "PUBLISHED", report["status"])
	assert.Equal(t, "gpt-4o", client.Calls()[0].Config.Model)
}

func TestRunCommandErrors(t *testing.T) {
	c := testCLI(t, llmtest.NewScriptedClient())

	_, err := execute(t, c, "run", "horoscope")
	assert.ErrorIs(t, err, agents.ErrUnknownAgent)

	_, err = execute(t, c, "run", "classify", "--input", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read input")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name":`), 0o600))
	_, err = execute(t, c, "run", "classify", "--input", bad)
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = execute(t, c, "run")
	assert.Error(t, err)
}

func TestRunCommandPrintsFailedRun(t *testing.T) {
	client := llmtest.NewScriptedClient(llmtest.Fail(&llm.ProviderError{Provider: "anthropic", Kind: llm.KindAuth, Err: assert.AnError}))
	out, err := execute(t, testCLI(t, client), "run", "bias_watch")
	require.Error(t, err)

	var run agents.Run
	require.NoError(t, json.Unmarshal([]byte(out), &run), out)
	assert.False(t, run.Succeeded())
	assert.NotEmpty(t, run.Error)
}

func TestToolsCommands(t *testing.T) {
	c := testCLI(t, llmtest.NewScriptedClient())

	out, err := execute(t, c, "tools", "list", "classify")
	require.NoError(t, err)
	assert.Contains(t, out, "generate_classification_report")
	assert.Contains(t, out, "check_annex_iii")

	out, err = execute(t, c, "tools", "validate")
	require.NoError(t, err)
	for _, def := range agents.Catalog() {
		assert.Contains(t, out, def.Name)
	}

	out, err = execute(t, c, "tools", "check", "classify", "check_fraud_exemption", `{"sole_purpose_fraud":true}`)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	_, err = execute(t, c, "tools", "check", "classify", "check_fraud_exemption", `{}`)
	assert.ErrorIs(t, err, tools.ErrValidation)

	_, err = execute(t, c, "tools", "check", "classify", "send_email", `{}`)
	assert.ErrorIs(t, err, tools.ErrToolNotFound)

	_, err = execute(t, c, "tools", "validate", "--dir", filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestScheduleCommand(t *testing.T) {
	client := llmtest.NewScriptedClient(publishScript()...)
	c := testCLI(t, client)

	out, err := execute(t, c, "schedule", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "weekly-bias-watch")
	assert.Contains(t, out, "CRON_TZ=Europe/Amsterdam")

	_, err = execute(t, c, "schedule", "--once", "weekly-bias-watch")
	require.NoError(t, err)
	assert.Len(t, client.Calls(), 2)

	_, err = execute(t, c, "schedule", "--once", "monthly-nothing")
	assert.Error(t, err)
}

func TestParityCommand(t *testing.T) {
	c := testCLI(t, llmtest.NewScriptedClient())

	out, err := execute(t, c, "parity", "412", "500", "371", "500")
	require.NoError(t, err)
	var res parityResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.InDelta(t, 0.082, res.Difference, 1e-9)
	assert.InDelta(t, 0.05, res.Threshold, 1e-9)
	require.Len(t, res.Breaches, 1)
	assert.Equal(t, fairness.SeverityHigh, res.Breaches[0].Severity)

	out, err = execute(t, c, "parity", "50", "100", "51", "100")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Empty(t, res.Breaches)

	_, err = execute(t, c, "parity", "1", "0", "1", "2")
	assert.Error(t, err)
	_, err = execute(t, c, "parity", "a", "1", "1", "2")
	assert.ErrorContains(t, err, "not an integer")
}

func TestCommandErrorsAreReported(t *testing.T) {
	c := testCLI(t, llmtest.NewScriptedClient())

	out, stderr, err := executeWithStderr(t, c, "parity", "5", "0", "3", "10")
	require.ErrorIs(t, err, fairness.ErrInvalidInput)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "Error:")
	assert.Contains(t, stderr, "invalid fairness input")

	_, stderr, err = executeWithStderr(t, c, "run", "no_such_agent")
	require.ErrorIs(t, err, agents.ErrUnknownAgent)
	assert.Contains(t, stderr, "unknown agent")
}

func TestHelpExamplesNameRealTools(t *testing.T) {
	out, err := execute(t, testCLI(t, llmtest.NewScriptedClient()),
		"tools", "check", "fria", "assess_fundamental_right", `{"right":"privacy_data_protection"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")
	assert.Contains(t, newRootCmd(&cli{}).Long, "assess_fundamental_right")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, testCLI(t, llmtest.NewScriptedClient()), "version")
	require.NoError(t, err)
	assert.Contains(t, out, `"build"`)
	assert.Contains(t, out, `"Registries"`)
}
