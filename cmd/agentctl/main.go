// In file: cmd/agentctl/main.go

// Package main implements agentctl, the operator command line for the
// compliance agents. It runs agents without the HTTP gateway, inspects and
// validates tool registries, drives the report schedule and exposes the
// fairness arithmetic for spot checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/app"
	"github.com/dileep-u-k/compliance-gateway/internal/config"
)

// cli carries the global flags and the service constructors. Tests replace
// loadConfig and newApp to run commands against scripted clients.
type cli struct {
	configPath string
	debug      bool

	loadConfig func(ctx context.Context, path string) (*config.Config, error)
	newApp     func(ctx context.Context, cfg *config.Config) (*app.App, error)
}

func main() {
	c := &cli{
		loadConfig: config.Load,
		newApp: func(ctx context.Context, cfg *config.Config) (*app.App, error) {
			return app.New(ctx, cfg)
		},
	}
	if err := newRootCmd(c).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentctl",
		Short: "Operate the EU AI Act compliance agents",
		Long: `agentctl runs the compliance agents from the command line.

Examples:
  agentctl run classify --input system.json
  agentctl tools list bias_watch
  agentctl tools check fria assess_fundamental_right '{"right":"privacy_data_protection"}'
  agentctl schedule --once weekly-bias-watch
  agentctl parity 412 500 371 500`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			format := log.FormatJSON
			if log.IsTerminal() {
				format = log.FormatTerminal
			}
			opts := []log.LogOption{log.WithFormat(format), log.WithOutput(cmd.ErrOrStderr())}
			if c.debug {
				opts = append(opts, log.WithDebug())
			}
			cmd.SetContext(log.Context(cmd.Context(), opts...))
		},
	}
	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logs")

	cmd.AddCommand(
		runCmd(c),
		toolsCmd(),
		scheduleCmd(c),
		parityCmd(c),
		versionCmd(),
	)
	return cmd
}

// --- Helper Functions ---

// services loads the configuration and builds the application. The caller
// must Close the returned App.
func (c *cli) services(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig(ctx, c.configPath)
	if err != nil {
		return nil, err
	}
	if c.debug {
		cfg.Debug = true
	}
	return c.newApp(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
