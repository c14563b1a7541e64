package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewVersionsCommand creates the versions command and its subcommands.
func NewVersionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Inspect and roll back schema versions",
	}

	cmd.PersistentFlags().String("user", "", "User the versions belong to (required)")

	cmd.AddCommand(newVersionsListCommand())
	cmd.AddCommand(newVersionsDiffCommand())
	cmd.AddCommand(newVersionsRollbackCommand())
	return cmd
}

func newVersionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schema versions, newest first",
		Example: `  # List versions for a user
  schemaforge versions list --user 7f9c0e04-...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			scope, err := scopeFrom(cmd, cmdCtx.Cfg)
			if err != nil {
				return err
			}

			versions, err := cmdCtx.Engine.Store().ListVersions(scope)
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No versions found")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Version", "ID", "Tables", "Active", "Created", "Description"})
			for _, v := range versions {
				active := ""
				if v.IsActive {
					active = "*"
				}
				t.AppendRow(table.Row{
					v.Version,
					v.ID,
					len(v.Snapshot.Tables),
					active,
					v.CreatedAt.Format(time.RFC3339),
					v.ChangeDescription,
				})
			}
			t.Render()
			return nil
		},
	}
}

func newVersionsDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <version-id-a> <version-id-b>",
		Short: "Show table-level differences between two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			diff, err := cmdCtx.Engine.Store().CompareVersions(args[0], args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(diff.Added)+len(diff.Removed)+len(diff.Modified) == 0 {
				fmt.Fprintln(out, "No differences")
				return nil
			}
			if len(diff.Added) > 0 {
				fmt.Fprintf(out, "Added:    %s\n", strings.Join(diff.Added, ", "))
			}
			if len(diff.Removed) > 0 {
				fmt.Fprintf(out, "Removed:  %s\n", strings.Join(diff.Removed, ", "))
			}
			if len(diff.Modified) > 0 {
				fmt.Fprintf(out, "Modified: %s\n", strings.Join(diff.Modified, ", "))
			}
			return nil
		},
	}
}

func newVersionsRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <version-id>",
		Short: "Restore a prior version's schema as a new version",
		Long: `Restore a prior version by running its snapshot back through the full
pipeline. The old version row is never revived; rollback produces a
brand-new version whose schema matches the target.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			scope, err := scopeFrom(cmd, cmdCtx.Cfg)
			if err != nil {
				return err
			}

			result, version, err := cmdCtx.Engine.Rollback(cmd.Context(), scope, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back: version %d created, %d tables provisioned\n",
				version.Version, len(result.TablesCreated))
			return nil
		},
	}
}
