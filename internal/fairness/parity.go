// In file: internal/fairness/parity.go

// Package fairness holds the numeric side of bias monitoring: the parity
// difference between two population groups and the threshold policy that
// turns raw metric values into breaches.
package fairness

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned when group counts cannot describe a valid rate.
var ErrInvalidInput = errors.New("invalid fairness input")

// GroupCounts holds the decision counts observed for one population group.
type GroupCounts struct {
	Approved int `json:"approved"`
	Declined int `json:"declined"`
	Total    int `json:"total"`
}

// ApprovalRate returns Approved/Total. It fails when Total is not positive
// or Approved is outside [0, Total].
func (g GroupCounts) ApprovalRate() (float64, error) {
	if g.Total <= 0 {
		return 0, fmt.Errorf("%w: group total must be greater than zero, got %d", ErrInvalidInput, g.Total)
	}
	if g.Approved < 0 || g.Approved > g.Total {
		return 0, fmt.Errorf("%w: approvals %d outside [0, %d]", ErrInvalidInput, g.Approved, g.Total)
	}
	return float64(g.Approved) / float64(g.Total), nil
}

// ParityDifference computes |aApproved/aTotal - bApproved/bTotal|, the
// demographic parity difference between two groups. The result is symmetric
// in its two groups and always lies in [0, 1].
func ParityDifference(aApproved, aTotal, bApproved, bTotal int) (float64, error) {
	rateA, err := GroupCounts{Approved: aApproved, Total: aTotal}.ApprovalRate()
	if err != nil {
		return 0, fmt.Errorf("group a: %w", err)
	}
	rateB, err := GroupCounts{Approved: bApproved, Total: bTotal}.ApprovalRate()
	if err != nil {
		return 0, fmt.Errorf("group b: %w", err)
	}
	return math.Abs(rateA - rateB), nil
}

// GroupParity is a convenience wrapper over ParityDifference for two
// GroupCounts values.
func GroupParity(a, b GroupCounts) (float64, error) {
	return ParityDifference(a.Approved, a.Total, b.Approved, b.Total)
}

// Round4 rounds a metric to four decimal places, the precision used in
// published fairness reports.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
