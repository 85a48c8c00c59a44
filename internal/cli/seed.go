package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/approval-engine/internal/bootstrap"
	"github.com/garyjia/approval-engine/internal/container"
)

func newSeedCommand(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load templates and role memberships from a YAML file",
		Long: `Seed inserts templates that do not exist yet and adds missing role
memberships. Existing templates are never modified, so the command can be
re-run safely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := bootstrap.LoadFile(file)
			if err != nil {
				return err
			}

			return opts.withContainer(cmd.Context(), func(ctx context.Context, c *container.Container) error {
				repos := c.Repositories()
				seeder := bootstrap.NewSeeder(repos.Template, repos.Role, c.DB(), c.Logger())

				result, err := seeder.Apply(ctx, seed)
				if err != nil {
					return err
				}

				if opts.json {
					return printJSON(cmd.OutOrStdout(), result)
				}
				out := cmd.OutOrStdout()
				successColor.Fprintf(out, "templates created: %d\n", result.TemplatesCreated)
				fmt.Fprintf(out, "templates skipped: %d\n", result.TemplatesSkipped)
				fmt.Fprintf(out, "role members added: %d\n", result.RolesAdded)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "configs/seed.yaml", "seed file")
	return cmd
}
