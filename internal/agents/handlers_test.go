package agents

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

// fixedDay is a Monday in ISO week 9 of 2026.
var fixedDay = time.Date(2026, time.February, 23, 14, 30, 0, 0, time.UTC)

func testDeps() Deps {
	deps := DefaultDeps()
	deps.Clock = func() time.Time { return fixedDay }
	return deps
}

func newAgentManager(t *testing.T, def Definition, deps Deps) *tools.ToolManager {
	t.Helper()
	fsys, err := RegistryFS("")
	require.NoError(t, err)
	registry, err := tools.LoadRegistry(fsys, def.RegistryFile)
	require.NoError(t, err)
	manager, err := tools.NewToolManager(registry, def.Handlers(deps))
	require.NoError(t, err)
	return manager
}

func callTool(t *testing.T, manager *tools.ToolManager, name string, args any) map[string]any {
	t.Helper()
	res := execTool(t, manager, name, args)
	require.False(t, res.IsError, "tool %s failed: %s", name, res.Output)
	var out map[string]any
	require.NoError(t, json.Unmarshal(res.Output, &out))
	return out
}

func execTool(t *testing.T, manager *tools.ToolManager, name string, args any) tools.Result {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return manager.Execute(context.Background(), tools.NewToolCall("call_1", name, string(raw)))
}

// =================================================================================
// ConformityBot
// =================================================================================

func TestConformityDocumentChecks(t *testing.T) {
	manager := newAgentManager(t, Conformity(), testDeps())

	rms := callTool(t, manager, "check_document_exists", map[string]any{"document_type": "risk_management_system"})
	assert.Equal(t, false, rms["exists"])
	assert.Equal(t, StatusFail, rms["status"])

	techDoc := callTool(t, manager, "check_document_exists", map[string]any{"document_type": "technical_documentation"})
	assert.Equal(t, StatusPartial, techDoc["status"])
	assert.Less(t, techDoc["completeness"].(float64), 80.0)

	res := execTool(t, manager, "check_document_exists", map[string]any{"document_type": "board_minutes"})
	assert.True(t, res.IsError, "enum violation must be reported to the model")
}

func TestConformityLogRetention(t *testing.T) {
	manager := newAgentManager(t, Conformity(), testDeps())

	out := callTool(t, manager, "check_log_retention", map[string]any{"log_endpoint": "https://logs.internal.finpulse.nl/api/ai-decisions/"})
	assert.Equal(t, float64(30), out["configured_retention_days"])
	assert.Equal(t, float64(MinLogRetentionDays), out["required_retention_days"])
	assert.Equal(t, false, out["compliant"])
	assert.Equal(t, float64(153), out["gap_days"])
	assert.Equal(t, StatusFail, out["status"])

	out = callTool(t, manager, "check_log_retention", map[string]any{"required_retention_days": 30})
	assert.Equal(t, true, out["compliant"])
	assert.Equal(t, StatusPass, out["status"])
}

func TestConformityOversight(t *testing.T) {
	manager := newAgentManager(t, Conformity(), testDeps())

	tests := []struct {
		name   string
		checks []string
		passed float64
		status string
	}{
		{"all checks", []string{"override_mechanism_present", "override_logging_active", "shap_explanation_displayed", "training_records_complete", "hitl_workflow_deployed"}, 1, StatusPartial},
		{"only passing", []string{"override_mechanism_present"}, 1, StatusPass},
		{"only failing", []string{"override_logging_active", "hitl_workflow_deployed"}, 0, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := callTool(t, manager, "verify_oversight_implementation", map[string]any{"checks": tt.checks})
			assert.Equal(t, tt.passed, out["passed"])
			assert.Equal(t, float64(len(tt.checks)), out["total"])
			assert.Equal(t, tt.status, out["status"])
		})
	}
}

func TestConformityReportRaisesNCRs(t *testing.T) {
	manager := newAgentManager(t, Conformity(), testDeps())

	out := callTool(t, manager, "generate_conformity_report", map[string]any{
		"check_results": []map[string]any{
			{"article": "Art. 9", "status": "FAIL", "notes": "No risk register"},
			{"article": "Art. 11", "status": "PARTIAL", "notes": "50% complete"},
			{"article": "Art. 12", "status": "FAIL", "notes": "30 day retention"},
			{"article": "Art. 14", "status": "PARTIAL", "notes": "Override logging absent"},
			{"article": "Art. 15", "status": "PASS"},
		},
	})
	assert.Equal(t, "REPORT_GENERATED", out["status"])
	assert.Equal(t, "compliance/reports/conformity-check.json", out["output_path"])
	assert.Equal(t, float64(5), out["total_obligations"])
	assert.Equal(t, float64(1), out["obligations_met"])
	assert.Equal(t, float64(4), out["ncr_count"])
	assert.Equal(t, 20.0, out["overall_score"])
	assert.Equal(t, "2026-02-23", out["assessment_date"])
	assert.Equal(t, "2026-04-01", out["next_assessment"])

	ncrs := out["ncrs"].([]any)
	require.Len(t, ncrs, 4)
	first := ncrs[0].(map[string]any)
	assert.Equal(t, "NCR-001", first["id"])
	assert.Equal(t, "Art. 9", first["article"])
	assert.Equal(t, "NCR-004", ncrs[3].(map[string]any)["id"])
}

func TestBuildConformityReport(t *testing.T) {
	score := 62.5
	report := BuildConformityReport([]CheckResult{
		{Article: "Art. 9", Status: StatusPass},
		{Article: "Art. 10", Status: StatusPass},
		{Article: "Art. 11", Status: StatusFail},
	}, &score, "out.json", time.Date(2026, time.December, 5, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, 62.5, report.OverallScore, "explicit score wins")
	assert.Equal(t, "out.json", report.OutputPath)
	assert.Equal(t, "2027-02-01", report.NextAssessment)
	assert.Equal(t, 1, report.NCRCount)

	computed := BuildConformityReport([]CheckResult{
		{Article: "Art. 9", Status: StatusPass},
		{Article: "Art. 10", Status: StatusPass},
		{Article: "Art. 11", Status: StatusFail},
	}, nil, "", fixedDay)
	assert.Equal(t, 66.7, computed.OverallScore)

	empty := BuildConformityReport(nil, nil, "", fixedDay)
	assert.Zero(t, empty.OverallScore)
	assert.NotNil(t, empty.NCRs)
}

func TestConformityMessage(t *testing.T) {
	deps := testDeps()
	msg, err := conformityMessage(nil, deps)
	require.NoError(t, err)
	assert.Contains(t, msg, "Run a Monthly Spot Check conformity assessment for pulsecredit-v2.1.")
	assert.Contains(t, msg, "Repository: sharepoint://compliance/eu-ai-act/pulsecredit/")
	for _, o := range deps.Obligations {
		assert.Contains(t, msg, "  - "+o.Article+": "+o.Obligation)
	}

	msg, err = conformityMessage(json.RawMessage(`{"articles":["Art. 12"]}`), deps)
	require.NoError(t, err)
	assert.Contains(t, msg, "Art. 12: Logging")
	assert.NotContains(t, msg, "Art. 9:")

	_, err = conformityMessage(json.RawMessage(`{"articles":["Art. 99"]}`), deps)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDefaultObligationsCoverAnnexVI(t *testing.T) {
	obligations := DefaultObligations()
	assert.GreaterOrEqual(t, len(obligations), 8)
	require.NoError(t, DefaultDeps().Validate())

	deps := DefaultDeps()
	deps.Obligations = append(deps.Obligations, Obligation{Article: "Art. 9", Obligation: "again"})
	assert.ErrorIs(t, deps.Validate(), ErrInvalidInput)
}

// =================================================================================
// BiasWatchAgent
// =================================================================================

func TestComputeFairnessMetricsOnBaselineWeek(t *testing.T) {
	out, err := ComputeFairnessMetrics(PulseCreditDecisions().Summary, fairness.DefaultPolicy())
	require.NoError(t, err)

	assert.Equal(t, 0.0088, out.Metrics["demographic_parity_gender"])
	assert.Equal(t, 0.194, out.Metrics["demographic_parity_age_1830"])
	assert.Equal(t, 0.2714, out.Metrics["demographic_parity_nationality"])
	assert.Equal(t, 0.07, out.Metrics["psi"])

	require.Len(t, out.Breaches, 2)
	assert.Equal(t, "demographic_parity_age_1830", out.Breaches[0].Metric)
	assert.Equal(t, fairness.SeverityHigh, out.Breaches[0].Severity)
	assert.Equal(t, "demographic_parity_nationality", out.Breaches[1].Metric)
	assert.Equal(t, fairness.SeverityHigh, out.Breaches[1].Severity)
}

func TestComputeFairnessMetricsSkipsMissingGroups(t *testing.T) {
	out, err := ComputeFairnessMetrics(DecisionSummary{PSI: 0.3}, fairness.DefaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"psi": 0.3}, out.Metrics)
	require.Len(t, out.Breaches, 1)
	assert.Equal(t, fairness.SeverityMedium, out.Breaches[0].Severity)
}

func TestBiasWatchToolChain(t *testing.T) {
	manager := newAgentManager(t, BiasWatch(), testDeps())

	log := callTool(t, manager, "query_decision_log", map[string]any{"start_date": "2026-02-16", "end_date": "2026-02-23"})
	assert.Equal(t, "2026-02-16 to 2026-02-23", log["period"])
	assert.Equal(t, float64(347), log["total_decisions"])

	metrics := callTool(t, manager, "compute_fairness_metrics", map[string]any{"data": log})
	assert.Len(t, metrics["breaches"], 2)

	first := callTool(t, manager, "create_incident_ticket", map[string]any{"metric": "demographic_parity_age_1830", "value": 0.194, "threshold": 0.05, "severity": "HIGH"})
	second := callTool(t, manager, "create_incident_ticket", map[string]any{"metric": "demographic_parity_nationality", "value": 0.2714, "threshold": 0.05, "severity": "HIGH"})
	assert.Equal(t, "BIAS-20260223-001", first["ticket_id"])
	assert.Equal(t, "BIAS-20260223-002", second["ticket_id"])
	assert.Equal(t, "CREATED", first["status"])

	report := callTool(t, manager, "publish_fairness_report", map[string]any{})
	assert.Equal(t, "PUBLISHED", report["status"])
	assert.Equal(t, "2026-W09", report["week"])
	assert.Equal(t, "compliance/fairness-reports/bias-watch-2026-W09.json", report["report_path"])
}

func TestBiasWatchTicketsRestartPerRun(t *testing.T) {
	deps := testDeps()
	for i := 0; i < 2; i++ {
		manager := newAgentManager(t, BiasWatch(), deps)
		out := callTool(t, manager, "create_incident_ticket", map[string]any{"metric": "psi", "severity": "MEDIUM"})
		assert.Equal(t, "BIAS-20260223-001", out["ticket_id"])
	}
}

func TestBiasWatchRejectsBadToolDates(t *testing.T) {
	manager := newAgentManager(t, BiasWatch(), testDeps())
	res := execTool(t, manager, "query_decision_log", map[string]any{"start_date": "last week", "end_date": "2026-02-23"})
	assert.True(t, res.IsError)
}

func TestBiasWatchMessageDateRange(t *testing.T) {
	deps := testDeps()
	msg, err := biasWatchMessage(nil, deps)
	require.NoError(t, err)
	assert.Contains(t, msg, "Date range: 2026-02-16 to 2026-02-23.")

	msg, err = biasWatchMessage(json.RawMessage(`{"start_date":"2026-01-01","end_date":"2026-01-31"}`), deps)
	require.NoError(t, err)
	assert.Contains(t, msg, "Date range: 2026-01-01 to 2026-01-31.")

	_, err = biasWatchMessage(json.RawMessage(`{"start_date":"2026-02-01","end_date":"2026-01-01"}`), deps)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = biasWatchMessage(json.RawMessage(`{"end_date":"01/02/2026"}`), deps)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestISOWeek(t *testing.T) {
	assert.Equal(t, "2026-W09", ISOWeek(fixedDay))
	assert.Equal(t, "2026-W01", ISOWeek(time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-W53", ISOWeek(time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)))
}

// =================================================================================
// ClassifyBot
// =================================================================================

func TestClassifyHandlers(t *testing.T) {
	manager := newAgentManager(t, Classify(), testDeps())

	prohibited := callTool(t, manager, "check_prohibited_practices", map[string]any{"system_purpose": "Credit scoring for consumer loans"})
	assert.Equal(t, "PASSED", prohibited["result"])

	social := callTool(t, manager, "check_prohibited_practices", map[string]any{"system_purpose": "Citizen social scoring", "techniques": []string{"Emotion recognition at work"}})
	assert.Equal(t, "FAILED", social["result"])
	assert.Len(t, social["prohibited_matches"], 2)

	annex := callTool(t, manager, "check_annex_iii", map[string]any{"system_purpose": "Evaluate creditworthiness for loan origination"})
	assert.Equal(t, true, annex["match_found"])
	assert.Equal(t, "Annex III, Point 5(b)", annex["category"])

	fraud := callTool(t, manager, "check_annex_iii", map[string]any{"system_purpose": "Fraud detection", "deployment_context": "payments"})
	assert.Equal(t, false, fraud["match_found"])
	assert.Contains(t, fraud["note"], "check_fraud_exemption")

	report := callTool(t, manager, "generate_classification_report", map[string]any{
		"system_name": "PulseCredit v2.1", "risk_tier": TierHighRisk, "legal_basis": "Art. 6(2) + Annex III Point 5(b)",
	})
	assert.Equal(t, 0.9, report["confidence"])
	assert.Equal(t, ObligationsDeadline, report["deadline"])
	assert.Len(t, report["obligations"], 9)
}

func TestClassifyReportRejectsUnknownTier(t *testing.T) {
	manager := newAgentManager(t, Classify(), testDeps())
	res := execTool(t, manager, "generate_classification_report", map[string]any{"risk_tier": "SOMEWHAT_RISKY", "legal_basis": "none"})
	assert.True(t, res.IsError)
}

func TestObligationsForTier(t *testing.T) {
	assert.Len(t, ObligationsForTier(TierHighRisk), 9)
	assert.Equal(t, []string{"Art. 5: System must not be deployed"}, ObligationsForTier(TierProhibited))
	assert.Empty(t, ObligationsForTier(TierMinimalRisk))
}

func TestClassifyMessageRequiresNameAndPurpose(t *testing.T) {
	msg, err := classifyMessage(json.RawMessage(`{"name":"PulseCredit v2.1","purpose":"Credit scoring"}`), testDeps())
	require.NoError(t, err)
	assert.Contains(t, msg, "Classify this AI system under EU AI Act (2024/1689): {")
	assert.Contains(t, msg, `"purpose": "Credit scoring"`)

	_, err = classifyMessage(json.RawMessage(`{"name":"PulseCredit v2.1"}`), testDeps())
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = classifyMessage(json.RawMessage(`[1,2]`), testDeps())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// =================================================================================
// DocDraftAgent
// =================================================================================

func TestDocDraftHandlers(t *testing.T) {
	manager := newAgentManager(t, DocDraft(), testDeps())

	meta := callTool(t, manager, "fetch_model_metadata", map[string]any{"registry_uri": PulseCreditRegistryURI})
	assert.Equal(t, "pulsecredit-v2.1.3", meta["model_id"])

	res := execTool(t, manager, "fetch_model_metadata", map[string]any{"registry_uri": "mlflow://unknown/v1"})
	assert.True(t, res.IsError)

	template := callTool(t, manager, "populate_annex_iv_template", map[string]any{
		"registry_uri": PulseCreditRegistryURI, "catalog_ref": PulseCreditCatalogRef,
	})
	assert.Equal(t, 50.0, template["completeness_pct"])
	assert.Len(t, template["missing_fields"], len(annexIVHumanSections))

	export := callTool(t, manager, "export_documentation_draft", map[string]any{
		"populated_fields": template["populated_fields"], "missing_fields": template["missing_fields"],
	})
	assert.Equal(t, "DRAFT_SAVED", export["status"])
	assert.Equal(t, defaultDraftPath, export["output_path"])
	assert.Equal(t, 50.0, export["completeness_pct"])
}

func TestDocDraftMessageValidatesInput(t *testing.T) {
	msg, err := docDraftMessage(json.RawMessage(`{"registry_uri":"mlflow://pulsecredit/v2.1.3","catalog_ref":"datahub://credit/training-2024-q4"}`), testDeps())
	require.NoError(t, err)
	assert.Contains(t, msg, "Risk Tier: HIGH_RISK")
	assert.Contains(t, msg, "Target Date: 2026-07-31")

	_, err = docDraftMessage(json.RawMessage(`{"registry_uri":"mlflow://pulsecredit/v2.1.3"}`), testDeps())
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = docDraftMessage(json.RawMessage(`{"registry_uri":"a","catalog_ref":"b","target_date":"July"}`), testDeps())
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// =================================================================================
// FRIAAgent
// =================================================================================

func TestFRIAHandlers(t *testing.T) {
	manager := newAgentManager(t, FRIA(), testDeps())

	for _, right := range RequiredRights {
		out := callTool(t, manager, "assess_fundamental_right", map[string]any{"right": right})
		assert.NotEqual(t, "UNKNOWN", out["likelihood"], right)
		mitigation := callTool(t, manager, "propose_mitigation_measures", map[string]any{"right": right})
		assert.NotEmpty(t, mitigation["mitigation_measures"], right)
	}

	res := execTool(t, manager, "assess_fundamental_right", map[string]any{"right": "right_to_bear_arms"})
	assert.True(t, res.IsError, "rights are an enum in the registry")

	report := callTool(t, manager, "generate_fria_report", map[string]any{
		"system_name":        "PulseCredit v2.1",
		"rights_assessments": []map[string]any{{"right": "non_discrimination"}, {"right": "human_dignity"}},
	})
	assert.Equal(t, "DRAFT_GENERATED", report["status"])
	assert.Equal(t, float64(2), report["rights_assessed"])
	assert.Len(t, report["rights_missing"], 4)
	assert.Equal(t, "compliance/artifacts/pulsecredit-v2.1-fria.json", report["output_path"])
}

func TestFRIAMessage(t *testing.T) {
	msg, err := friaMessage(json.RawMessage(`{"system_name":"PulseCredit v2.1","affected_population":"Dutch retail borrowers"}`), testDeps())
	require.NoError(t, err)
	assert.Contains(t, msg, "GDPR DPIA Reference: None")
	for _, right := range RequiredRights {
		assert.Contains(t, msg, right)
	}

	_, err = friaMessage(json.RawMessage(`{"system_name":"PulseCredit v2.1"}`), testDeps())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
