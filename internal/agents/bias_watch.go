// In file: internal/agents/bias_watch.go
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

const biasWatchSystemPrompt = "You are BiasWatchAgent, an EU AI Act Article 10 bias monitoring specialist. " +
	"Each week, query the previous 7 days of PulseCredit decisions, " +
	"compute all configured fairness metrics, compare to thresholds, " +
	"create incident tickets for any breaches, and publish a fairness report. " +
	"Protected attributes: gender, age_bracket (18-30, 31-54, 55-75), nationality (Dutch/non-Dutch). " +
	"Be precise about metric values and threshold comparisons."

// incidentRecipients are notified of every fairness incident.
var incidentRecipients = []string{"head_of_data_science@finpulse.nl"}

// parityPairs are the group comparisons reported every week.
var parityPairs = []struct {
	metric    string
	attribute string
	a, b      string
}{
	{"demographic_parity_gender", "gender", "male", "female"},
	{"demographic_parity_age_1830", "age_bracket", "18-30", "31-54"},
	{"demographic_parity_nationality", "nationality", "dutch", "non_dutch"},
}

// BiasWatchInput is the BiasWatchAgent input. Both dates default to the
// seven days ending today.
type BiasWatchInput struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// BiasWatch is the weekly Article 10 bias monitor.
func BiasWatch() Definition {
	return Definition{
		Name:             "bias_watch",
		Title:            "BiasWatchAgent: Article 10 weekly demographic parity monitoring",
		RegistryFile:     "bias_watch.json",
		TerminalTool:     "publish_fairness_report",
		SystemPrompt:     biasWatchSystemPrompt,
		DefaultModel:     "claude-opus-4-6",
		DefaultMaxTokens: 8096,
		BuildMessage:     biasWatchMessage,
		Handlers:         biasWatchHandlers,
	}
}

func biasWatchMessage(input json.RawMessage, deps Deps) (string, error) {
	in, err := decodeAgentInput[BiasWatchInput](input)
	if err != nil {
		return "", err
	}
	start, end, err := in.dateRange(deps.today())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Run weekly bias monitoring report for PulseCredit. "+
		"Date range: %s to %s. "+
		"Query decision log, compute all fairness metrics, "+
		"create incident tickets for any threshold breaches, "+
		"and publish the report.", start.Format(dateLayout), end.Format(dateLayout)), nil
}

func (in BiasWatchInput) dateRange(today time.Time) (time.Time, time.Time, error) {
	end := today
	if in.EndDate != "" {
		t, err := time.Parse(dateLayout, in.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %w", ErrInvalidInput, err)
		}
		end = t
	}
	start := end.AddDate(0, 0, -7)
	if in.StartDate != "" {
		t, err := time.Parse(dateLayout, in.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %w", ErrInvalidInput, err)
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date %s is after end_date %s",
			ErrInvalidInput, start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func biasWatchHandlers(deps Deps) tools.Handlers {
	var tickets atomic.Int32
	return tools.Handlers{
		"query_decision_log": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				StartDate string `json:"start_date"`
				EndDate   string `json:"end_date"`
			}](input)
			if err != nil {
				return nil, err
			}
			start, err := parseToolDate("start_date", in.StartDate)
			if err != nil {
				return nil, err
			}
			end, err := parseToolDate("end_date", in.EndDate)
			if err != nil {
				return nil, err
			}
			summary, err := deps.Decisions.Decisions(ctx, start, end)
			if err != nil {
				return nil, err
			}
			return decisionLogResult{
				Period:          fmt.Sprintf("%s to %s", in.StartDate, in.EndDate),
				DecisionSummary: summary,
			}, nil
		},
		"compute_fairness_metrics": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				Data DecisionSummary `json:"data"`
			}](input)
			if err != nil {
				return nil, err
			}
			return ComputeFairnessMetrics(in.Data, deps.Policy)
		},
		"create_incident_ticket": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				Metric      string   `json:"metric"`
				Value       *float64 `json:"value"`
				Threshold   *float64 `json:"threshold"`
				Severity    string   `json:"severity"`
				Description string   `json:"description"`
			}](input)
			if err != nil {
				return nil, err
			}
			seq := tickets.Add(1)
			return map[string]any{
				"ticket_id": fmt.Sprintf("BIAS-%s-%03d", deps.today().Format("20060102"), seq),
				"status":    "CREATED",
				"severity":  in.Severity,
				"metric":    in.Metric,
				"value":     in.Value,
				"threshold": in.Threshold,
				"notified":  incidentRecipients,
			}, nil
		},
		"publish_fairness_report": func(ctx context.Context, input json.RawMessage) (any, error) {
			in, err := tools.DecodeInput[struct {
				Week     string           `json:"week"`
				Metrics  map[string]any   `json:"metrics"`
				Breaches []map[string]any `json:"breaches"`
				Summary  string           `json:"summary"`
			}](input)
			if err != nil {
				return nil, err
			}
			week := in.Week
			if week == "" {
				week = ISOWeek(deps.today())
			}
			return fairnessReport{
				Status:     "PUBLISHED",
				ReportPath: fmt.Sprintf("compliance/fairness-reports/bias-watch-%s.json", week),
				Week:       week,
				Metrics:    in.Metrics,
				Breaches:   in.Breaches,
				Summary:    in.Summary,
			}, nil
		},
	}
}

type decisionLogResult struct {
	Period string `json:"period"`
	DecisionSummary
}

type fairnessReport struct {
	Status     string           `json:"status"`
	ReportPath string           `json:"report_path"`
	Week       string           `json:"week"`
	Metrics    map[string]any   `json:"metrics,omitempty"`
	Breaches   []map[string]any `json:"breaches,omitempty"`
	Summary    string           `json:"summary,omitempty"`
}

// FairnessMetrics is the compute_fairness_metrics output.
type FairnessMetrics struct {
	Metrics    map[string]float64  `json:"metrics"`
	Breaches   []fairness.Breach   `json:"breaches"`
	Thresholds fairness.Thresholds `json:"thresholds"`
}

// ComputeFairnessMetrics derives the parity metrics for every configured
// pair present in summary, adds PSI and evaluates them against policy.
// Pairs whose groups are absent are skipped; impossible counts fail.
func ComputeFairnessMetrics(summary DecisionSummary, policy fairness.Policy) (FairnessMetrics, error) {
	metrics := make(map[string]float64, len(parityPairs)+1)
	for _, pair := range parityPairs {
		groups, ok := summary.Demographics[pair.attribute]
		if !ok {
			continue
		}
		a, okA := groups[pair.a]
		b, okB := groups[pair.b]
		if !okA || !okB {
			continue
		}
		diff, err := fairness.GroupParity(a, b)
		if err != nil {
			return FairnessMetrics{}, fmt.Errorf("%w: %s: %w", tools.ErrValidation, pair.metric, err)
		}
		metrics[pair.metric] = fairness.Round4(diff)
	}
	metrics["psi"] = summary.PSI
	return FairnessMetrics{
		Metrics:    metrics,
		Breaches:   policy.Evaluate(metrics),
		Thresholds: policy.Thresholds,
	}, nil
}

// ISOWeek formats t as an ISO 8601 week, e.g. 2026-W09.
func ISOWeek(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// --- Helper Functions ---

func parseToolDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD: %w", tools.ErrValidation, field, err)
	}
	return t, nil
}

func checkDate(field, value string) error {
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrInvalidInput, field)
	}
	return nil
}
