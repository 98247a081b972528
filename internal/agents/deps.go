// In file: internal/agents/deps.go
package agents

import (
	"fmt"
	"time"

	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
)

// Obligation is one Article 16 item checked during a conformity assessment.
type Obligation struct {
	Article    string `yaml:"article" json:"article"`
	Obligation string `yaml:"obligation" json:"obligation"`
}

// DefaultObligations is the Annex VI checklist.
func DefaultObligations() []Obligation {
	return []Obligation{
		{Article: "Art. 9", Obligation: "Risk Management System documented and operational"},
		{Article: "Art. 10", Obligation: "Data governance policy and bias assessment completed"},
		{Article: "Art. 11", Obligation: "Annex IV technical documentation complete (>80%)"},
		{Article: "Art. 12", Obligation: "Logging configured with at least 6-month retention"},
		{Article: "Art. 13", Obligation: "Instructions for use provided to deployers"},
		{Article: "Art. 14", Obligation: "Human oversight (HITL) mechanism deployed"},
		{Article: "Art. 15", Obligation: "Accuracy and robustness testing conducted"},
		{Article: "Art. 27", Obligation: "Fundamental Rights Impact Assessment completed"},
	}
}

// Deps are the collaborators and settings shared by the agent handlers.
type Deps struct {
	Policy      fairness.Policy
	Obligations []Obligation
	// Clock supplies "today" for default date ranges, ticket ids and weeks.
	Clock func() time.Time

	Decisions DecisionLog
	Models    ModelRegistry
	Catalog   DataCatalog
	Documents DocumentRepository
	Oversight OversightProbe
}

// DefaultDeps wires the PulseCredit fixtures and the default policy.
func DefaultDeps() Deps {
	return Deps{
		Policy:      fairness.DefaultPolicy(),
		Obligations: DefaultObligations(),
		Clock:       time.Now,
		Decisions:   PulseCreditDecisions(),
		Models:      PulseCreditModels(),
		Catalog:     PulseCreditCatalog(),
		Documents:   PulseCreditDocuments(),
		Oversight:   PulseCreditOversight(),
	}
}

// withDefaults fills every unset field from DefaultDeps.
func (d Deps) withDefaults() Deps {
	def := DefaultDeps()
	if d.Policy == (fairness.Policy{}) {
		d.Policy = def.Policy
	}
	if d.Obligations == nil {
		d.Obligations = def.Obligations
	}
	if d.Clock == nil {
		d.Clock = def.Clock
	}
	if d.Decisions == nil {
		d.Decisions = def.Decisions
	}
	if d.Models == nil {
		d.Models = def.Models
	}
	if d.Catalog == nil {
		d.Catalog = def.Catalog
	}
	if d.Documents == nil {
		d.Documents = def.Documents
	}
	if d.Oversight == nil {
		d.Oversight = def.Oversight
	}
	return d
}

// Validate checks the injected settings.
func (d Deps) Validate() error {
	if err := d.Policy.Validate(); err != nil {
		return err
	}
	if len(d.Obligations) == 0 {
		return fmt.Errorf("%w: at least one conformity obligation is required", ErrInvalidInput)
	}
	seen := make(map[string]bool, len(d.Obligations))
	for _, o := range d.Obligations {
		if o.Article == "" || o.Obligation == "" {
			return fmt.Errorf("%w: obligation entries need an article and a text", ErrInvalidInput)
		}
		if seen[o.Article] {
			return fmt.Errorf("%w: obligation %s listed twice", ErrInvalidInput, o.Article)
		}
		seen[o.Article] = true
	}
	return nil
}

func (d Deps) today() time.Time {
	t := d.Clock()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
