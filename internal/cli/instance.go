package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/container"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

func newInstanceCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Create, inspect and cancel workflow instances",
	}

	var req workflow.CreateInstanceRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Start an instance of a template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				inst, err := c.WorkflowEngine().CreateInstance(ctx, req)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), inst)
				}
				successColor.Fprintf(cmd.OutOrStdout(), "instance %s started\n", inst.ID)
				return showInstance(ctx, cmd, c, inst.ID)
			})
		},
	}
	create.Flags().StringVar(&req.TemplateID, "template", "", "template id (required)")
	create.Flags().StringVar(&req.DocumentRef, "doc", "", "document reference (required)")
	create.Flags().StringVar(&req.Initiator, "as", "", "initiating user id (required)")
	create.Flags().StringVar(&req.Priority, "priority", entity.PriorityNormal, "LOW, NORMAL, HIGH or URGENT")
	create.Flags().StringVar(&req.Comments, "comments", "", "instance comments")
	_ = create.MarkFlagRequired("template")
	_ = create.MarkFlagRequired("doc")
	_ = create.MarkFlagRequired("as")

	show := &cobra.Command{
		Use:   "show <instance-id>",
		Short: "Show an instance with its tasks and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				if opts.json {
					inst, err := c.WorkflowEngine().GetInstance(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), inst)
				}
				return showInstance(ctx, cmd, c, args[0])
			})
		},
	}

	var status string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List instances, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				instances, err := c.WorkflowEngine().ListInstances(ctx, status, limit, offset)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), instances)
				}

				t := newTable("ID", "TEMPLATE", "DOCUMENT", "INITIATOR", "STATUS", "STEP", "PRIORITY", "STARTED")
				for _, inst := range instances {
					t.addRow(inst.ID, inst.TemplateID, inst.DocumentRef, inst.Initiator, inst.Status,
						strconv.Itoa(inst.CurrentStepOrder), inst.Priority, formatTime(inst.StartDate))
				}
				t.render(cmd.OutOrStdout())
				return nil
			})
		},
	}
	list.Flags().StringVar(&status, "status", "", "filter by status")
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")

	var actor, reason string
	cancel := &cobra.Command{
		Use:   "cancel <instance-id>",
		Short: "Cancel an in-progress instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				inst, err := c.WorkflowEngine().CancelInstance(ctx, args[0], actor, reason)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), inst)
				}
				mutedColor.Fprintf(cmd.OutOrStdout(), "instance %s cancelled\n", inst.ID)
				return nil
			})
		},
	}
	cancel.Flags().StringVar(&actor, "as", "", "acting user id (required)")
	cancel.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	_ = cancel.MarkFlagRequired("as")

	cmd.AddCommand(create, show, list, cancel)
	return cmd
}

func showInstance(ctx context.Context, cmd *cobra.Command, c *container.Container, id string) error {
	inst, err := c.WorkflowEngine().GetInstance(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	headerColor.Fprintf(out, "Instance %s\n", inst.ID)
	fmt.Fprintf(out, "  Template:  %s\n", inst.TemplateID)
	fmt.Fprintf(out, "  Document:  %s\n", inst.DocumentRef)
	fmt.Fprintf(out, "  Initiator: %s\n", inst.Initiator)
	fmt.Fprint(out, "  Status:    ")
	statusOrPlain(inst.Status).Fprintln(out, inst.Status)
	fmt.Fprintf(out, "  Step:      %d\n", inst.CurrentStepOrder)
	fmt.Fprintf(out, "  Priority:  %s\n", inst.Priority)
	fmt.Fprintf(out, "  Started:   %s\n", formatTime(inst.StartDate))
	fmt.Fprintf(out, "  Due:       %s\n", formatTimePtr(inst.DueDate))
	fmt.Fprintf(out, "  Ended:     %s\n", formatTimePtr(inst.EndDate))

	fmt.Fprintln(out)
	renderTasks(cmd, inst.Tasks)

	fmt.Fprintln(out)
	h := newTable("WHEN", "ACTION", "BY", "TASK", "DETAILS")
	for _, e := range inst.History {
		h.addRow(formatTime(e.ActionDate), e.ActionCode, deref(e.PerformedBy), deref(e.TaskID), e.Details)
	}
	h.render(out)
	return nil
}
