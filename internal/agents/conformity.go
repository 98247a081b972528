// In file: internal/agents/conformity.go
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

const conformitySystemPrompt = "You are ConformityBot, an EU AI Act Annex VI conformity assessment specialist. " +
	"Systematically verify each Article 16 obligation by checking document existence, " +
	"log retention, and oversight implementation. " +
	"For each check: document the evidence found, assign status (PASS/PARTIAL/FAIL), " +
	"and record notes. " +
	"Calculate the overall conformity score as percentage of obligations met. " +
	"Generate a structured conformity report with all Non-Conformity Reports (NCRs)."

// MinLogRetentionDays is the Article 12 minimum of six months.
const MinLogRetentionDays = 183

// ConformityInput is the ConformityBot input. Every field has a default.
type ConformityInput struct {
	SystemID       string   `json:"system_id,omitempty"`
	RepositoryPath string   `json:"repository_path,omitempty"`
	LogEndpoint    string   `json:"log_endpoint,omitempty"`
	AssessmentType string   `json:"assessment_type,omitempty"`
	Articles       []string `json:"articles,omitempty"`
}

func (in ConformityInput) withDefaults() ConformityInput {
	if in.SystemID == "" {
		in.SystemID = "pulsecredit-v2.1"
	}
	if in.RepositoryPath == "" {
		in.RepositoryPath = "sharepoint://compliance/eu-ai-act/pulsecredit/"
	}
	if in.LogEndpoint == "" {
		in.LogEndpoint = "https://logs.internal.finpulse.nl/api/ai-decisions/"
	}
	if in.AssessmentType == "" {
		in.AssessmentType = "Monthly Spot Check"
	}
	return in
}

// Conformity runs Annex VI internal-control conformity assessments.
func Conformity() Definition {
	return Definition{
		Name:             "conformity",
		Title:            "ConformityBot: Annex VI conformity assessment",
		RegistryFile:     "conformity.json",
		TerminalTool:     "generate_conformity_report",
		SystemPrompt:     conformitySystemPrompt,
		DefaultModel:     "claude-opus-4-6",
		DefaultMaxTokens: 8096,
		BuildMessage:     conformityMessage,
		Handlers:         conformityHandlers,
	}
}

func conformityMessage(input json.RawMessage, deps Deps) (string, error) {
	in, err := decodeAgentInput[ConformityInput](input)
	if err != nil {
		return "", err
	}
	in = in.withDefaults()
	obligations, err := selectObligations(deps.Obligations, in.Articles)
	if err != nil {
		return "", err
	}
	var list strings.Builder
	for _, o := range obligations {
		fmt.Fprintf(&list, "  - %s: %s\n", o.Article, o.Obligation)
	}
	return fmt.Sprintf("Run a %s conformity assessment for %s.\n"+
		"Repository: %s\nLogging system: %s\n\n"+
		"Check all of the following obligations:\n%s\n"+
		"For each obligation: check if the required document/evidence exists, "+
		"verify log retention, verify oversight implementation. "+
		"Then generate a complete conformity report with NCRs and overall score.",
		in.AssessmentType, in.SystemID, in.RepositoryPath, in.LogEndpoint, list.String()), nil
}

// selectObligations keeps the obligations for articles, in checklist order.
// An empty filter keeps all of them; an unknown article is an input error.
func selectObligations(all []Obligation, articles []string) ([]Obligation, error) {
	if len(articles) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(articles))
	for _, a := range articles {
		wanted[a] = true
	}
	var out []Obligation
	for _, o := range all {
		if wanted[o.Article] {
			out = append(out, o)
			delete(wanted, o.Article)
		}
	}
	for a := range wanted {
		return nil, fmt.Errorf("%w: article %q is not in the obligations checklist", ErrInvalidInput, a)
	}
	return out, nil
}

// CheckResult is one assessed obligation.
type CheckResult struct {
	Article    string `json:"article"`
	Obligation string `json:"obligation,omitempty"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
}

// NCR is a Non-Conformity Report raised for a FAIL or PARTIAL obligation.
type NCR struct {
	ID         string `json:"id"`
	Article    string `json:"article"`
	Obligation string `json:"obligation"`
	Status     string `json:"status"`
	Notes      string `json:"notes"`
}

// ConformityReport is the generate_conformity_report output.
type ConformityReport struct {
	Status           string  `json:"status"`
	OutputPath       string  `json:"output_path"`
	OverallScore     float64 `json:"overall_score"`
	TotalObligations int     `json:"total_obligations"`
	ObligationsMet   int     `json:"obligations_met"`
	NCRCount         int     `json:"ncr_count"`
	NCRs             []NCR   `json:"ncrs"`
	AssessmentDate   string  `json:"assessment_date"`
	NextAssessment   string  `json:"next_assessment"`
}

// BuildConformityReport numbers NCRs in result order. When score is nil the
// overall score is the share of obligations with status PASS.
func BuildConformityReport(results []CheckResult, score *float64, outputPath string, assessed time.Time) ConformityReport {
	report := ConformityReport{
		Status:           "REPORT_GENERATED",
		OutputPath:       outputPath,
		TotalObligations: len(results),
		NCRs:             []NCR{},
		AssessmentDate:   assessed.Format(dateLayout),
		NextAssessment:   time.Date(assessed.Year(), assessed.Month()+2, 1, 0, 0, 0, 0, assessed.Location()).Format(dateLayout),
	}
	if report.OutputPath == "" {
		report.OutputPath = "compliance/reports/conformity-check.json"
	}
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			report.ObligationsMet++
		case StatusFail, StatusPartial:
			report.NCRs = append(report.NCRs, NCR{
				ID:         fmt.Sprintf("NCR-%03d", len(report.NCRs)+1),
				Article:    r.Article,
				Obligation: r.Obligation,
				Status:     r.Status,
				Notes:      r.Notes,
			})
		}
	}
	report.NCRCount = len(report.NCRs)
	switch {
	case score != nil:
		report.OverallScore = *score
	case len(results) > 0:
		report.OverallScore = math.Round(1000*float64(report.ObligationsMet)/float64(len(results))) / 10
	}
	return report
}

func conformityHandlers(deps Deps) tools.Handlers {
	return tools.Handlers{
		"check_document_exists": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				DocumentType string `json:"document_type"`
			}](input)
			if err != nil {
				return nil, err
			}
			return deps.Documents.Document(ctx, in.DocumentType)
		},
		"check_log_retention": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				LogEndpoint           string `json:"log_endpoint"`
				RequiredRetentionDays int    `json:"required_retention_days"`
			}](input)
			if err != nil {
				return nil, err
			}
			required := in.RequiredRetentionDays
			if required <= 0 {
				required = MinLogRetentionDays
			}
			configured, err := deps.Documents.LogRetentionDays(ctx, in.LogEndpoint)
			if err != nil {
				return nil, err
			}
			compliant := configured >= required
			status, notes := StatusPass, fmt.Sprintf("Retention of %d days meets the %d day minimum.", configured, required)
			gap := 0
			if !compliant {
				gap = required - configured
				status = StatusFail
				notes = fmt.Sprintf("Retention of %d days is %d days short of the %d day minimum.", configured, gap, required)
			}
			return map[string]any{
				"configured_retention_days": configured,
				"required_retention_days":   required,
				"compliant":                 compliant,
				"gap_days":                  gap,
				"status":                    status,
				"notes":                     notes,
			}, nil
		},
		"verify_oversight_implementation": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				Checks []string `json:"checks"`
			}](input)
			if err != nil {
				return nil, err
			}
			results := make(map[string]bool, len(in.Checks))
			passed := 0
			for _, check := range in.Checks {
				ok, err := deps.Oversight.Check(ctx, check)
				if err != nil {
					return nil, err
				}
				results[check] = ok
				if ok {
					passed++
				}
			}
			status := StatusFail
			switch {
			case len(in.Checks) > 0 && passed == len(in.Checks):
				status = StatusPass
			case passed > 0:
				status = StatusPartial
			}
			return map[string]any{
				"checks": results,
				"passed": passed,
				"total":  len(in.Checks),
				"status": status,
			}, nil
		},
		"generate_conformity_report": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				CheckResults []CheckResult `json:"check_results"`
				OverallScore *float64      `json:"overall_score"`
				OutputPath   string        `json:"output_path"`
			}](input)
			if err != nil {
				return nil, err
			}
			return BuildConformityReport(in.CheckResults, in.OverallScore, in.OutputPath, deps.today()), nil
		},
	}
}
