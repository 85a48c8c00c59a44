package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/container"
)

func newTickCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one SLA and escalation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				result := c.Scheduler().Tick(ctx)

				if opts.json {
					return printJSON(cmd.OutOrStdout(), result)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "overdue:   %d\n", result.Overdue)
				fmt.Fprintf(out, "escalated: %d\n", result.Escalated)
				fmt.Fprintf(out, "skipped:   %d\n", result.Skipped)
				if result.Failed > 0 {
					errorColor.Fprintf(out, "failed:    %d\n", result.Failed)
				} else {
					fmt.Fprintf(out, "failed:    %d\n", result.Failed)
				}
				mutedColor.Fprintf(out, "took %s\n", result.Duration)
				return nil
			})
		},
	}
}
