package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <schema.json>",
		Short: "Validate, compile and provision a schema",
		Long: `Run a schema through the full pipeline: validate, compile to DDL,
provision the target database, persist the result as the new active
version and publish the entities to the resource registry.

On databases with transactional DDL the whole schema applies atomically.
Otherwise tables are provisioned one at a time and per-table failures
are reported without aborting the remaining tables.`,
		Example: `  # Apply a schema for a user
  schemaforge apply schema.json --user 7f9c0e04-...

  # Apply with a change description
  schemaforge apply schema.json --user 7f9c0e04-... -m "add deal pipeline"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, args[0])
		},
	}

	cmd.Flags().String("user", "", "User the schema belongs to (required)")
	cmd.Flags().StringP("message", "m", "", "Change description recorded with the version")
	return cmd
}

func runApply(cmd *cobra.Command, path string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	scope, err := scopeFrom(cmd, cmdCtx.Cfg)
	if err != nil {
		return err
	}

	schema, err := loadSchemaFile(path)
	if err != nil {
		return err
	}

	description, err := cmd.Flags().GetString("message")
	if err != nil {
		return err
	}

	result, version, err := cmdCtx.Engine.Apply(cmd.Context(), scope, schema, description)
	if err != nil {
		if printValidationError(cmd, err) {
			return fmt.Errorf("validation failed")
		}
		var perr *core.ProvisioningError
		if errors.As(err, &perr) && result != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Provisioning failed: %d of %d tables created\n\n",
				len(result.TablesCreated), len(schema.Tables))
			for _, te := range result.Errors {
				if te.Table != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", te.Table, te.Message)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", te.Message)
				}
			}
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Applied version %d: %d tables provisioned\n",
		version.Version, len(result.TablesCreated))
	return nil
}
