// In file: cmd/agentctl/schedule.go
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"goa.design/clue/log"

	"github.com/dileep-u-k/compliance-gateway/internal/schedule"
)

func scheduleCmd(c *cli) *cobra.Command {
	var (
		once string
		list bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the configured report schedule",
		Long: `Run the configured schedule in the foreground until interrupted.

  --list        print each entry with its next firing time and exit
  --once NAME   run one entry immediately and exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			services, err := c.services(ctx)
			if err != nil {
				return err
			}
			defer services.Close()

			s := schedule.New(ctx)
			if err := services.ScheduleJobs(s); err != nil {
				return err
			}

			switch {
			case list:
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tSPEC\tNEXT")
				now := time.Now()
				for _, e := range s.Entries() {
					next, err := schedule.Next(e.Spec, now, nil)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, e.Spec, next.Format(time.RFC3339))
				}
				if err := w.Flush(); err != nil {
					return err
				}
				return s.Stop(ctx)
			case once != "":
				runErr := s.Trigger(ctx, once)
				if err := s.Stop(ctx); err != nil {
					return err
				}
				return runErr
			}

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			s.Start()
			log.Print(ctx, log.KV{K: "msg", V: "scheduler running"}, log.KV{K: "entries", V: len(s.Entries())})
			<-sigCtx.Done()

			log.Print(ctx, log.KV{K: "msg", V: "stopping scheduler"})
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
			defer cancel()
			return s.Stop(stopCtx)
		},
	}
	cmd.Flags().StringVar(&once, "once", "", "run the named entry now and exit")
	cmd.Flags().BoolVar(&list, "list", false, "list entries and their next firing time")
	cmd.MarkFlagsMutuallyExclusive("once", "list")
	return cmd
}
