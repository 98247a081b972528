// In file: internal/agents/sources.go
package agents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
)

// ErrNotFound is returned by data sources for unknown identifiers.
var ErrNotFound = errors.New("not found")

// =================================================================================
// Source Interfaces
// =================================================================================

// DecisionLog serves aggregated lending decisions for a date range.
type DecisionLog interface {
	Decisions(ctx context.Context, start, end time.Time) (DecisionSummary, error)
}

// ModelRegistry serves model metadata by registry URI.
type ModelRegistry interface {
	ModelMetadata(ctx context.Context, uri string) (ModelMetadata, error)
}

// DataCatalog serves training data lineage by catalog reference.
type DataCatalog interface {
	Dataset(ctx context.Context, ref string) (DatasetLineage, error)
}

// DocumentRepository reports the state of compliance documents and the
// retention configured on the decision log.
type DocumentRepository interface {
	Document(ctx context.Context, docType string) (DocumentState, error)
	LogRetentionDays(ctx context.Context, endpoint string) (int, error)
}

// OversightProbe checks whether a human oversight control is in place.
type OversightProbe interface {
	Check(ctx context.Context, check string) (bool, error)
}

// =================================================================================
// Data Shapes
// =================================================================================

// DecisionSummary is one period of decisions broken down by protected attribute.
type DecisionSummary struct {
	TotalDecisions int `json:"total_decisions"`
	// Demographics maps attribute -> group -> counts.
	Demographics map[string]map[string]fairness.GroupCounts `json:"demographics"`
	PSI          float64                                    `json:"psi"`
}

type ModelMetadata struct {
	ModelID           string         `json:"model_id"`
	SystemName        string         `json:"system_name"`
	Purpose           string         `json:"purpose"`
	Architecture      string         `json:"architecture"`
	Framework         string         `json:"framework"`
	TrainingDate      string         `json:"training_date"`
	AUCROC            float64        `json:"auc_roc"`
	Gini              float64        `json:"gini"`
	KSStatistic       float64        `json:"ks_statistic"`
	PSI               float64        `json:"psi"`
	Hyperparameters   map[string]any `json:"hyperparameters"`
	TrainingRecords   int            `json:"training_records"`
	TrainValTestSplit string         `json:"train_val_test_split"`
}

type DataSource struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Records int    `json:"records"`
	Period  string `json:"period,omitempty"`
}

type DatasetLineage struct {
	CatalogRef      string       `json:"catalog_ref"`
	Sources         []DataSource `json:"sources"`
	BiasAssessment  string       `json:"bias_assessment"`
	PostcodeRemoved bool         `json:"postcode_removed"`
	GDPRBasis       string       `json:"gdpr_basis"`
}

// DocumentState is what the repository knows about one document type.
type DocumentState struct {
	Exists       bool   `json:"exists"`
	Completeness int    `json:"completeness"`
	Status       string `json:"status"`
	Notes        string `json:"notes"`
}

// =================================================================================
// In-memory Implementations
// =================================================================================

// StaticDecisionLog returns the same weekly summary for any range.
type StaticDecisionLog struct {
	Summary DecisionSummary
}

func (l StaticDecisionLog) Decisions(ctx context.Context, start, end time.Time) (DecisionSummary, error) {
	if end.Before(start) {
		return DecisionSummary{}, fmt.Errorf("end date %s is before start date %s", end.Format(dateLayout), start.Format(dateLayout))
	}
	return l.Summary, nil
}

// StaticModelRegistry is a map from registry URI to metadata.
type StaticModelRegistry map[string]ModelMetadata

func (r StaticModelRegistry) ModelMetadata(ctx context.Context, uri string) (ModelMetadata, error) {
	m, ok := r[uri]
	if !ok {
		return ModelMetadata{}, fmt.Errorf("model %s: %w", uri, ErrNotFound)
	}
	return m, nil
}

// StaticDataCatalog is a map from catalog reference to lineage.
type StaticDataCatalog map[string]DatasetLineage

func (c StaticDataCatalog) Dataset(ctx context.Context, ref string) (DatasetLineage, error) {
	d, ok := c[ref]
	if !ok {
		return DatasetLineage{}, fmt.Errorf("dataset %s: %w", ref, ErrNotFound)
	}
	return d, nil
}

// StaticDocumentRepository holds document states and one retention setting.
type StaticDocumentRepository struct {
	Documents     map[string]DocumentState
	RetentionDays int
}

// Document returns the stored state. Unknown types are reported as missing
// rather than as an error, which is how an auditor would record them.
func (r StaticDocumentRepository) Document(ctx context.Context, docType string) (DocumentState, error) {
	if d, ok := r.Documents[docType]; ok {
		return d, nil
	}
	return DocumentState{Status: StatusFail, Notes: "Document type not recognised"}, nil
}

func (r StaticDocumentRepository) LogRetentionDays(ctx context.Context, endpoint string) (int, error) {
	return r.RetentionDays, nil
}

// StaticOversightProbe answers from a fixed table; unknown checks fail.
type StaticOversightProbe map[string]bool

func (p StaticOversightProbe) Check(ctx context.Context, check string) (bool, error) {
	return p[check], nil
}

// =================================================================================
// PulseCredit Baseline Fixtures
// =================================================================================

// PulseCreditDecisions is one week of PulseCredit decisions.
func PulseCreditDecisions() StaticDecisionLog {
	return StaticDecisionLog{Summary: DecisionSummary{
		TotalDecisions: 347,
		Demographics: map[string]map[string]fairness.GroupCounts{
			"gender": {
				"male":   {Approved: 118, Declined: 62, Total: 180},
				"female": {Approved: 108, Declined: 59, Total: 167},
			},
			"age_bracket": {
				"18-30": {Approved: 58, Declined: 48, Total: 106},
				"31-54": {Approved: 126, Declined: 44, Total: 170},
				"55-75": {Approved: 42, Declined: 29, Total: 71},
			},
			"nationality": {
				"dutch":     {Approved: 198, Declined: 84, Total: 282},
				"non_dutch": {Approved: 28, Declined: 37, Total: 65},
			},
		},
		PSI: 0.07,
	}}
}

// PulseCreditRegistryURI is the registry entry of the production model.
const PulseCreditRegistryURI = "mlflow://pulsecredit/v2.1.3"

// PulseCreditCatalogRef is the training data snapshot of the production model.
const PulseCreditCatalogRef = "datahub://credit/training-2024-q4"

func PulseCreditModels() StaticModelRegistry {
	return StaticModelRegistry{
		PulseCreditRegistryURI: {
			ModelID:      "pulsecredit-v2.1.3",
			SystemName:   "PulseCredit v2.1",
			Purpose:      "AI credit scoring and loan origination",
			Architecture: "XGBoost ensemble (500 trees) + Logistic Regression calibration layer",
			Framework:    "XGBoost 2.0.3 + scikit-learn 1.4.0",
			TrainingDate: "2025-09-15",
			AUCROC:       0.799,
			Gini:         0.598,
			KSStatistic:  0.411,
			PSI:          0.09,
			Hyperparameters: map[string]any{
				"n_estimators":  500,
				"max_depth":     5,
				"learning_rate": 0.05,
				"subsample":     0.8,
			},
			TrainingRecords:   380000,
			TrainValTestSplit: "70/15/15",
		},
	}
}

func PulseCreditCatalog() StaticDataCatalog {
	return StaticDataCatalog{
		PulseCreditCatalogRef: {
			CatalogRef: PulseCreditCatalogRef,
			Sources: []DataSource{
				{Name: "BKR", Type: "credit_bureau", Records: 380000, Period: "2018-2024"},
				{Name: "PSD2 transaction feed", Type: "open_banking", Records: 247000, Period: "2022-2024"},
				{Name: "Loan application forms", Type: "user_input", Records: 380000},
			},
			BiasAssessment:  "Fairlearn v0.10, September 2025",
			PostcodeRemoved: true,
			GDPRBasis:       "Art. 6(1)(b) contract necessity; Art. 9(2)(g) substantial public interest (bias testing)",
		},
	}
}

// PulseCreditDocuments is the February 2026 baseline of the compliance repository.
func PulseCreditDocuments() StaticDocumentRepository {
	return StaticDocumentRepository{
		RetentionDays: 30,
		Documents: map[string]DocumentState{
			"risk_management_system": {
				Status: StatusFail, Notes: "No risk register located in repository. Action required immediately.",
			},
			"technical_documentation": {
				Exists: true, Completeness: 50, Status: StatusPartial,
				Notes: "14/28 Annex IV items populated. Missing: failure modes, instructions for use.",
			},
			"bias_assessment": {
				Status: StatusFail, Notes: "No formal bias test report found in repository.",
			},
			"fria": {
				Status: StatusFail, Notes: "FRIA not initiated. Required before deployment.",
			},
			"conformity_declaration": {
				Status: StatusFail, Notes: "Declaration of Conformity not yet issued.",
			},
			"human_oversight_procedure": {
				Exists: true, Completeness: 40, Status: StatusPartial,
				Notes: "Loans above EUR 5k reviewed by loan officers. Override logging absent.",
			},
			"logging_configuration": {
				Exists: true, Completeness: 100, Status: StatusFail,
				Notes: "Logging active but retention configured at 30 days (minimum: 183 days).",
			},
		},
	}
}

func PulseCreditOversight() StaticOversightProbe {
	return StaticOversightProbe{
		"override_mechanism_present": true,
		"override_logging_active":    false,
		"shap_explanation_displayed": false,
		"training_records_complete":  false,
		"hitl_workflow_deployed":     false,
	}
}
