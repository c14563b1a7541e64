// Package cli provides the command-line interface for schemaforge.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schemaforge-labs/schemaforge/internal/cli/commands"
	"github.com/schemaforge-labs/schemaforge/internal/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schemaforge",
		Short: "SchemaForge - AI-Proposed Schema Compiler",
		Long: `SchemaForge validates AI-proposed declarative schemas, compiles them to
PostgreSQL DDL with row-level isolation, provisions them with per-entity
failure isolation, and keeps an immutable version history with rollback.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			cmd.SetContext(commands.WithConfig(cmd.Context(), cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	// Global persistent flags. Names match config keys so posflag can
	// layer them over file and environment values.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./schemaforge.yaml)")
	rootCmd.PersistentFlags().String("state_path", "", "Path to the version-store database")
	rootCmd.PersistentFlags().String("project_id", "", "Project the operation is scoped to")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewCompileCommand())
	rootCmd.AddCommand(commands.NewApplyCommand())
	rootCmd.AddCommand(commands.NewVersionsCommand())
	rootCmd.AddCommand(commands.NewResourcesCommand())
	rootCmd.AddCommand(commands.NewTracesCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
