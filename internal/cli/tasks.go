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

func newTasksCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and decide approval tasks",
	}

	var assignee, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				tasks, err := c.WorkflowEngine().ListTasksForAssignee(ctx, assignee, status)
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), tasks)
				}
				renderTasks(cmd, tasks)
				return nil
			})
		},
	}
	list.Flags().StringVar(&assignee, "assignee", "", "user id (required)")
	list.Flags().StringVar(&status, "status", "", "filter by status: PENDING, OVERDUE, COMPLETED, CANCELLED")
	_ = list.MarkFlagRequired("assignee")

	var actor, action, comments string
	act := &cobra.Command{
		Use:   "act <task-id>",
		Short: "Approve or reject a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				result, err := c.WorkflowEngine().SubmitTaskAction(ctx, workflow.TaskActionRequest{
					TaskID:   args[0],
					Actor:    actor,
					Action:   action,
					Comments: comments,
				})
				if err != nil {
					return err
				}
				if opts.json {
					return printJSON(cmd.OutOrStdout(), result)
				}

				out := cmd.OutOrStdout()
				successColor.Fprintf(out, "task %s %s\n", result.Task.ID, result.Task.Action)
				fmt.Fprintf(out, "step verdict: %s\n", string(result.Verdict))
				fmt.Fprintf(out, "instance %s: ", result.Instance.ID)
				statusOrPlain(result.Instance.Status).Fprintf(out, "%s", result.Instance.Status)
				fmt.Fprintf(out, " (step %d)\n", result.Instance.CurrentStepOrder)
				if len(result.Assigned) > 0 {
					fmt.Fprintln(out, "new tasks:")
					renderTasks(cmd, result.Assigned)
				}
				return nil
			})
		},
	}
	act.Flags().StringVar(&actor, "as", "", "acting user id (required)")
	act.Flags().StringVar(&action, "action", entity.ActionApprove, "APPROVE or REJECT")
	act.Flags().StringVar(&comments, "comments", "", "decision comments")
	_ = act.MarkFlagRequired("as")

	cmd.AddCommand(list, act)
	return cmd
}

func renderTasks(cmd *cobra.Command, tasks []*entity.ApprovalTask) {
	t := newTable("ID", "INSTANCE", "STEP", "ASSIGNEE", "STATUS", "ACTION", "DUE")
	for _, task := range tasks {
		t.addRow(task.ID, task.InstanceID, strconv.Itoa(task.StepOrder), task.AssignedTo,
			task.Status, task.Action, formatTime(task.DueDate))
	}
	t.render(cmd.OutOrStdout())
}
