// In file: cmd/agentctl/tools.go
package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dileep-u-k/compliance-gateway/internal/agents"
	"github.com/dileep-u-k/compliance-gateway/internal/tools"
)

// toolsCmd inspects the tool registries. It works offline: no config, keys
// or Redis are needed.
func toolsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and validate tool registries",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "registry directory (default: embedded registries)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <agent>",
			Short: "List the tools an agent may call",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				def, err := agents.Lookup(args[0])
				if err != nil {
					return err
				}
				registries, err := loadRegistries(dir)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TOOL\tTERMINAL\tDESCRIPTION")
				for _, spec := range registries[def.Name].Specs() {
					fmt.Fprintf(w, "%s\t%v\t%s\n", spec.Name, spec.Terminal, spec.Description)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check every agent registry against its handlers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				registries, err := loadRegistries(dir)
				if err != nil {
					return err
				}
				for _, def := range agents.Catalog() {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d tools, terminal %s: OK\n", def.Name, registries[def.Name].Len(), def.TerminalTool)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "check <agent> <tool> <arguments-json>",
			Short: "Validate tool arguments against the registry schema",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				def, err := agents.Lookup(args[0])
				if err != nil {
					return err
				}
				registries, err := loadRegistries(dir)
				if err != nil {
					return err
				}
				if err := registries[def.Name].Validate(args[1], json.RawMessage(args[2])); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s arguments are valid\n", args[1])
				return nil
			},
		},
	)
	return cmd
}

func loadRegistries(dir string) (map[string]*tools.Registry, error) {
	fsys, err := agents.RegistryFS(dir)
	if err != nil {
		return nil, err
	}
	return agents.LoadRegistries(fsys)
}
