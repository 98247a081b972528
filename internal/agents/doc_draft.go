// In file: internal/agents/doc_draft.go
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

const docDraftSystemPrompt = "You are DocDraftAgent, an EU AI Act Annex IV documentation specialist. " +
	"Your task is to generate a structured technical documentation draft " +
	"by querying model registry and data catalog systems. " +
	"Map all retrieved metadata to the corresponding Annex IV sections. " +
	"Clearly flag any fields that require human completion. " +
	"Aim for maximum automation: the fewer fields left for humans, the better."

const defaultDraftPath = "compliance/artifacts/pulsecredit-v2.1.3-annex-iv-draft.json"

// annexIVHumanSections cannot be derived from registry or catalog metadata.
var annexIVHumanSections = []string{
	"Section 2.3: Known failure modes and edge cases",
	"Section 3.4: Post-market monitoring plan",
	"Section 4.1: Instructions for deployers",
	"Section 5.2: Residual risk justification",
	"Section 6.1: Cybersecurity test results",
	"Section 7.0: Signatory and declaration",
}

// DocDraftInput is the DocDraftAgent input.
type DocDraftInput struct {
	RegistryURI       string `json:"registry_uri"`
	CatalogRef        string `json:"catalog_ref"`
	RiskTier          string `json:"risk_tier,omitempty"`
	SystemOwner       string `json:"system_owner,omitempty"`
	TargetDate        string `json:"target_date,omitempty"`
	AdditionalContext string `json:"additional_context,omitempty"`
}

// DocDraft generates Annex IV technical documentation drafts.
func DocDraft() Definition {
	return Definition{
		Name:             "doc_draft",
		Title:            "DocDraftAgent: Annex IV technical documentation draft",
		RegistryFile:     "doc_draft.json",
		TerminalTool:     "export_documentation_draft",
		SystemPrompt:     docDraftSystemPrompt,
		DefaultModel:     "gpt-4o",
		DefaultMaxTokens: 8096,
		BuildMessage:     docDraftMessage,
		Handlers:         docDraftHandlers,
	}
}

func docDraftMessage(input json.RawMessage, _ Deps) (string, error) {
	in, err := decodeAgentInput[DocDraftInput](input)
	if err != nil {
		return "", err
	}
	if err := requireField("registry_uri", in.RegistryURI); err != nil {
		return "", err
	}
	if err := requireField("catalog_ref", in.CatalogRef); err != nil {
		return "", err
	}
	if in.RiskTier == "" {
		in.RiskTier = TierHighRisk
	}
	if in.TargetDate == "" {
		in.TargetDate = "2026-07-31"
	}
	if err := checkDate("target_date", in.TargetDate); err != nil {
		return "", err
	}
	extra := in.AdditionalContext
	if extra == "" {
		extra = "None"
	}
	return fmt.Sprintf("Generate an EU AI Act Annex IV technical documentation draft.\n"+
		"Model Registry: %s\nData Catalog: %s\nRisk Tier: %s\nSystem Owner: %s\nTarget Date: %s\nAdditional Context: %s",
		in.RegistryURI, in.CatalogRef, in.RiskTier, in.SystemOwner, in.TargetDate, extra), nil
}

func docDraftHandlers(deps Deps) tools.Handlers {
	return tools.Handlers{
		"fetch_model_metadata": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				RegistryURI string `json:"registry_uri"`
			}](input)
			if err != nil {
				return nil, err
			}
			return deps.Models.ModelMetadata(ctx, in.RegistryURI)
		},
		"fetch_data_catalog": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				CatalogRef string `json:"catalog_ref"`
			}](input)
			if err != nil {
				return nil, err
			}
			return deps.Catalog.Dataset(ctx, in.CatalogRef)
		},
		"populate_annex_iv_template": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				RegistryURI string `json:"registry_uri"`
				CatalogRef  string `json:"catalog_ref"`
			}](input)
			if err != nil {
				return nil, err
			}
			model, err := deps.Models.ModelMetadata(ctx, in.RegistryURI)
			if err != nil {
				return nil, err
			}
			data, err := deps.Catalog.Dataset(ctx, in.CatalogRef)
			if err != nil {
				return nil, err
			}
			populated := populateAnnexIV(model, data)
			missing := append([]string(nil), annexIVHumanSections...)
			return map[string]any{
				"populated_fields": populated,
				"missing_fields":   missing,
				"completeness_pct": completeness(len(populated), len(missing)),
			}, nil
		},
		"export_documentation_draft": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				PopulatedFields map[string]any `json:"populated_fields"`
				MissingFields   []string       `json:"missing_fields"`
				OutputPath      string         `json:"output_path"`
			}](input)
			if err != nil {
				return nil, err
			}
			if in.OutputPath == "" {
				in.OutputPath = defaultDraftPath
			}
			if in.MissingFields == nil {
				in.MissingFields = []string{}
			}
			return map[string]any{
				"status":                       "DRAFT_SAVED",
				"output_path":                  in.OutputPath,
				"completeness_pct":             completeness(len(in.PopulatedFields), len(in.MissingFields)),
				"fields_populated":             len(in.PopulatedFields),
				"fields_requiring_human_input": len(in.MissingFields),
				"missing_fields":               in.MissingFields,
			}, nil
		},
	}
}

// --- Helper Functions ---

func populateAnnexIV(model ModelMetadata, data DatasetLineage) map[string]string {
	names := make([]string, 0, len(data.Sources))
	var periods []string
	for _, s := range data.Sources {
		names = append(names, s.Name)
		if s.Period != "" {
			periods = append(periods, s.Period)
		}
	}
	bias := data.BiasAssessment
	if data.PostcodeRemoved {
		bias += ". Postcode feature removed."
	}
	return map[string]string{
		"1_general_description": fmt.Sprintf("%s: %s", model.SystemName, model.Purpose),
		"2_system_description":  model.Architecture,
		"3_training_data": fmt.Sprintf("%s records, %s, %s",
			groupThousands(model.TrainingRecords), periodSpan(periods), strings.Join(names, " + ")),
		"4_performance_metrics": fmt.Sprintf("AUC-ROC: %v | GINI: %v | KS: %v | PSI: %v",
			model.AUCROC, model.Gini, model.KSStatistic, model.PSI),
		"5_bias_assessment": bias,
		"6_logging_config":  "6-month retention, pending engineering implementation",
	}
}

// completeness is the populated share in percent, rounded to one decimal.
func completeness(populated, missing int) float64 {
	total := populated + missing
	if total == 0 {
		return 0
	}
	return math.Round(1000*float64(populated)/float64(total)) / 10
}

// periodSpan merges "YYYY-YYYY" periods into the widest span.
func periodSpan(periods []string) string {
	if len(periods) == 0 {
		return "period unknown"
	}
	var bounds []string
	for _, p := range periods {
		bounds = append(bounds, strings.Split(p, "-")...)
	}
	sort.Strings(bounds)
	return bounds[0] + "-" + bounds[len(bounds)-1]
}

func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + groupThousands(-n)
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}
