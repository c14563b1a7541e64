package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemaforge-labs/schemaforge/internal/compiler"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <schema.json>",
		Short: "Compile a schema to DDL without executing it",
		Long: `Validate a schema definition and print the DDL that provisioning
would execute. Compilation is deterministic: the same schema always
produces byte-identical output.`,
		Example: `  # Print the DDL for a schema
  schemaforge compile schema.json

  # Write the DDL to a file
  schemaforge compile schema.json -o schema.sql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0])
		},
	}

	cmd.Flags().StringP("out", "o", "", "Write DDL to a file instead of stdout")
	return cmd
}

func runCompile(cmd *cobra.Command, path string) error {
	cfg := ConfigFrom(cmd.Context())

	schema, err := loadSchemaFile(path)
	if err != nil {
		return err
	}

	if err := newValidator(cfg).Validate(schema).Err(); err != nil {
		if printValidationError(cmd, err) {
			return fmt.Errorf("validation failed")
		}
		return err
	}

	comp, err := compiler.New(newLogger(cfg.Verbose))
	if err != nil {
		return err
	}
	ddl, err := comp.Compile(schema)
	if err != nil {
		return err
	}

	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	if out != "" {
		if err := os.WriteFile(out, []byte(ddl), 0600); err != nil {
			return fmt.Errorf("failed to write DDL: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(ddl), out)
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), ddl)
	return nil
}
