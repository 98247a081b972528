// In file: cmd/agentctl/run.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"goa.design/clue/log"
)

func runCmd(c *cli) *cobra.Command {
	var (
		inputPath  string
		model      string
		noCache    bool
		reportOnly bool
	)
	cmd := &cobra.Command{
		Use:   "run <agent>",
		Short: "Run an agent and print the stored run",
		Long: `Run an agent once. The input is a JSON object read from --input
("-" reads stdin). The run is printed as JSON; with --report-only only the
final report is printed. A failed run is still printed before the error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input, err := readInput(cmd, inputPath)
			if err != nil {
				return err
			}

			services, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close()

			run, cacheStatus, runErr := services.Run(ctx, args[0], input, model, !noCache)
			if run == nil {
				return runErr
			}
			log.Info(ctx, log.KV{K: "msg", V: "run finished"}, log.KV{K: "run_id", V: run.ID}, log.KV{K: "cache_status", V: string(cacheStatus)})

			if reportOnly {
				switch {
				case run.Result != nil:
					err = printJSON(cmd.OutOrStdout(), run.Result.Report)
				case run.Partial != nil:
					err = printJSON(cmd.OutOrStdout(), run.Partial)
				}
			} else {
				err = printJSON(cmd.OutOrStdout(), run)
			}
			if runErr != nil {
				return runErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "", `agent input JSON file, "-" for stdin`)
	cmd.Flags().StringVarP(&model, "model", "m", "", "override the agent's model")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "skip the report cache")
	cmd.Flags().BoolVar(&reportOnly, "report-only", false, "print only the report")
	return cmd
}

// --- Helper Functions ---

func readInput(cmd *cobra.Command, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return nil, nil
	case "-":
		data, err = io.ReadAll(cmd.InOrStdin())
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("input %s is not valid JSON", path)
	}
	return data, nil
}
