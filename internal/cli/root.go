// Package cli implements approvalctl, the operator command line for the
// approval engine. Commands work directly against the configured database.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Build information, injected with -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type globalOptions struct {
	configPath string
	logLevel   string
	json       bool
}

// NewRootCommand builds the approvalctl command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "approvalctl",
		Short: "Operate the workflow approval engine",
		Long: `approvalctl manages the approval engine's database and workflows.

Examples:
  # Apply schema migrations
  approvalctl migrate up

  # Load templates and role memberships
  approvalctl seed -f configs/seed.yaml

  # Start an instance and decide its first task
  approvalctl instance create --template expense --doc doc-42 --as ivy
  approvalctl tasks list --assignee mgr
  approvalctl tasks act <task-id> --as mgr --action APPROVE

  # Run one SLA scheduler pass
  approvalctl tick`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (defaults and APPROVAL_* env when empty)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "print JSON instead of tables")

	root.AddCommand(
		newMigrateCommand(opts),
		newSeedCommand(opts),
		newTickCommand(opts),
		newTasksCommand(opts),
		newInstanceCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs approvalctl and returns the process exit code
func Execute() int {
	return run(NewRootCommand(), os.Args[1:], os.Stderr)
}

func run(root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		errorColor.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "approvalctl\n")
			fmt.Fprintf(out, "  Version:    %s\n", Version)
			fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
		},
	}
}
