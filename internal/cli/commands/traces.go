package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewTracesCommand creates the traces command.
func NewTracesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Show the decision trace audit log",
		Long: `List the append-only decision traces recorded for a scope, newest
first. Traces capture every schema-affecting action with its intent and
the action taken.`,
		Example: `  # Show the last 20 traces
  schemaforge traces --user 7f9c0e04-... --limit 20`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTraces(cmd)
		},
	}

	cmd.Flags().String("user", "", "User the traces belong to (required)")
	cmd.Flags().Int("limit", 50, "Maximum number of traces to show (0 for all)")
	return cmd
}

func runTraces(cmd *cobra.Command) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	scope, err := scopeFrom(cmd, cmdCtx.Cfg)
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	traces, err := cmdCtx.Engine.Store().ListTraces(scope, limit)
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No traces found")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Time", "Intent", "Action", "Version"})
	for _, tr := range traces {
		t.AppendRow(table.Row{
			tr.Timestamp.Format(time.RFC3339),
			tr.Intent,
			tr.Action,
			tr.Version,
		})
	}
	t.Render()
	return nil
}
