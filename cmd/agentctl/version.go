// In file: cmd/agentctl/version.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/dileep-u-k/compliance-gateway/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build and component versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"build":      version.GetBuildInfo(),
				"components": version.ComponentVersions,
			})
		},
	}
}
