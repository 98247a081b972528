package fairness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThresholds(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 0.05, th.DemographicParity)
	assert.Equal(t, 0.08, th.EqualizedOdds)
	assert.Equal(t, 0.25, th.PSI)
	assert.Equal(t, 0.15, th.ApprovalRateCV)
	require.NoError(t, DefaultPolicy().Validate())
}

func TestPolicyEvaluate(t *testing.T) {
	p := DefaultPolicy()
	breaches := p.Evaluate(map[string]float64{
		"demographic_parity_gender":      0.0088,
		"demographic_parity_age_1830":    0.194,
		"demographic_parity_nationality": 0.06,
		"psi":                            0.07,
		"unknown_metric":                 9,
	})
	require.Len(t, breaches, 2)
	assert.Equal(t, Breach{Metric: "demographic_parity_age_1830", Value: 0.194, Threshold: 0.05, Severity: SeverityHigh}, breaches[0])
	assert.Equal(t, Breach{Metric: "demographic_parity_nationality", Value: 0.06, Threshold: 0.05, Severity: SeverityMedium}, breaches[1])
}

func TestPolicyValueAtThresholdIsNotABreach(t *testing.T) {
	p := DefaultPolicy()
	assert.Empty(t, p.Evaluate(map[string]float64{"psi": 0.25}))
	assert.Len(t, p.Evaluate(map[string]float64{"psi": 0.2501}), 1)
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	p.Thresholds.PSI = 0
	require.ErrorIs(t, p.Validate(), ErrInvalidInput)

	p = DefaultPolicy()
	p.HighSeverityFactor = 0.5
	require.ErrorIs(t, p.Validate(), ErrInvalidInput)
}

func TestThresholdFor(t *testing.T) {
	p := DefaultPolicy()
	cases := map[string]float64{
		"demographic_parity_gender":  0.05,
		"equalized_odds_gender":      0.08,
		"psi":                        0.25,
		"approval_rate_cv_by_region": 0.15,
	}
	for metric, want := range cases {
		got, ok := p.ThresholdFor(metric)
		require.True(t, ok, metric)
		assert.Equal(t, want, got, metric)
	}
	_, ok := p.ThresholdFor("gini")
	assert.False(t, ok)
}
