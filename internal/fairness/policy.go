// In file: internal/fairness/policy.go
package fairness

import (
	"fmt"
	"sort"
	"strings"
)

// Thresholds are the alert limits for each monitored metric family.
// A metric breaches when its value is strictly greater than the limit.
type Thresholds struct {
	DemographicParity float64 `yaml:"demographic_parity" json:"demographic_parity"`
	EqualizedOdds     float64 `yaml:"equalized_odds" json:"equalized_odds"`
	PSI               float64 `yaml:"psi" json:"psi"`
	ApprovalRateCV    float64 `yaml:"approval_rate_cv" json:"approval_rate_cv"`
}

// DefaultThresholds returns the Article 10 aligned limits used by the weekly
// bias monitor.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DemographicParity: 0.05,
		EqualizedOdds:     0.08,
		PSI:               0.25,
		ApprovalRateCV:    0.15,
	}
}

// Severity grades a breach.
type Severity string

const (
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Breach describes one metric over its threshold.
type Breach struct {
	Metric    string   `json:"metric"`
	Value     float64  `json:"value"`
	Threshold float64  `json:"threshold"`
	Severity  Severity `json:"severity"`
}

// Policy couples thresholds with the factor above which a breach is HIGH.
type Policy struct {
	Thresholds         Thresholds `yaml:"thresholds" json:"thresholds"`
	HighSeverityFactor float64    `yaml:"high_severity_factor" json:"high_severity_factor"`
}

// DefaultPolicy returns DefaultThresholds with a 1.5x high severity factor.
func DefaultPolicy() Policy {
	return Policy{Thresholds: DefaultThresholds(), HighSeverityFactor: 1.5}
}

// Validate reports a configuration that could never flag a breach correctly.
func (p Policy) Validate() error {
	limits := map[string]float64{
		"demographic_parity": p.Thresholds.DemographicParity,
		"equalized_odds":     p.Thresholds.EqualizedOdds,
		"psi":                p.Thresholds.PSI,
		"approval_rate_cv":   p.Thresholds.ApprovalRateCV,
	}
	for name, v := range limits {
		if v <= 0 {
			return fmt.Errorf("%w: threshold %s must be positive, got %v", ErrInvalidInput, name, v)
		}
	}
	if p.HighSeverityFactor < 1 {
		return fmt.Errorf("%w: high severity factor must be >= 1, got %v", ErrInvalidInput, p.HighSeverityFactor)
	}
	return nil
}

// ThresholdFor maps a metric name onto its family limit. Parity metrics are
// named demographic_parity_<attribute>.
func (p Policy) ThresholdFor(metric string) (float64, bool) {
	switch {
	case strings.Contains(metric, "parity"):
		return p.Thresholds.DemographicParity, true
	case strings.Contains(metric, "equalized_odds"):
		return p.Thresholds.EqualizedOdds, true
	case strings.Contains(metric, "approval_rate_cv"):
		return p.Thresholds.ApprovalRateCV, true
	case metric == "psi" || strings.HasPrefix(metric, "psi_"):
		return p.Thresholds.PSI, true
	}
	return 0, false
}

// Evaluate returns the breaches among metrics, ordered by metric name.
// Metrics without a known family are ignored.
func (p Policy) Evaluate(metrics map[string]float64) []Breach {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	breaches := []Breach{}
	for _, name := range names {
		limit, ok := p.ThresholdFor(name)
		if !ok {
			continue
		}
		value := metrics[name]
		if value <= limit {
			continue
		}
		severity := SeverityMedium
		if value > limit*p.HighSeverityFactor {
			severity = SeverityHigh
		}
		breaches = append(breaches, Breach{Metric: name, Value: value, Threshold: limit, Severity: severity})
	}
	return breaches
}
