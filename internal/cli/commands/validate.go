package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaforge-labs/schemaforge/internal/config"
	"github.com/schemaforge-labs/schemaforge/internal/validator"
	"github.com/schemaforge-labs/schemaforge/pkg/core"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema.json>",
		Short: "Validate a schema definition",
		Long: `Validate a schema definition against all structural and security rules
without touching any database. All failures are reported together.`,
		Example: `  # Validate a schema file
  schemaforge validate schema.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	cfg := ConfigFrom(cmd.Context())

	schema, err := loadSchemaFile(path)
	if err != nil {
		return err
	}

	v := newValidator(cfg)
	result := v.Validate(schema)
	if result.Passed {
		fmt.Fprintf(cmd.OutOrStdout(), "Schema is valid: %d tables, %d relationships\n",
			len(schema.Tables), len(schema.Relationships))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Schema is invalid: %d errors\n\n", len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", e.Rule, formatErrorDetail(e))
	}
	return fmt.Errorf("validation failed")
}

func newValidator(cfg *config.Config) *validator.Validator {
	logger := newLogger(cfg.Verbose)
	if cfg.Validation.MaxTables > 0 || cfg.Validation.MaxColumns > 0 || cfg.Validation.MaxReferenceDepth > 0 {
		return validator.New(logger, validator.WithLimits(
			orDefault(cfg.Validation.MaxTables, validator.DefaultMaxTables),
			orDefault(cfg.Validation.MaxColumns, validator.DefaultMaxColumns),
			orDefault(cfg.Validation.MaxReferenceDepth, validator.DefaultMaxReferenceDepth),
		))
	}
	return validator.New(logger)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func formatErrorDetail(e core.ErrorDetail) string {
	loc := e.Table
	if e.Column != "" {
		loc = e.Table + "." + e.Column
	}
	if loc == "" {
		return e.Message
	}
	return loc + ": " + e.Message
}

// printValidationError expands a validation error into its detail list.
func printValidationError(cmd *cobra.Command, err error) bool {
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema is invalid: %d errors\n\n", len(verr.Errors))
	for _, e := range verr.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", e.Rule, formatErrorDetail(e))
	}
	return true
}
