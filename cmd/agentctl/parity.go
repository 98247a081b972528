// In file: cmd/agentctl/parity.go
package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dileep-u-k/compliance-gateway/internal/fairness"
)

type parityResult struct {
	Difference float64           `json:"parity_difference"`
	Threshold  float64           `json:"threshold"`
	Breaches   []fairness.Breach `json:"breaches"`
}

func parityCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "parity <a_approved> <a_total> <b_approved> <b_total>",
		Short: "Compute the demographic parity difference of two groups",
		Long: `Compute |a_approved/a_total - b_approved/b_total| and grade it
against the configured demographic parity threshold.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			counts := make([]int, len(args))
			for i, arg := range args {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("argument %d: %q is not an integer", i+1, arg)
				}
				counts[i] = n
			}
			diff, err := fairness.ParityDifference(counts[0], counts[1], counts[2], counts[3])
			if err != nil {
				return err
			}

			cfg, err := c.loadConfig(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			diff = fairness.Round4(diff)
			return printJSON(cmd.OutOrStdout(), parityResult{
				Difference: diff,
				Threshold:  cfg.Fairness.Thresholds.DemographicParity,
				Breaches:   cfg.Fairness.Evaluate(map[string]float64{"demographic_parity": diff}),
			})
		},
	}
}
