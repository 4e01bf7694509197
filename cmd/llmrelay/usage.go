package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/flemzord/llmrelay/internal/usage"
	"github.com/flemzord/llmrelay/modules/ledger/sqlite"
	"github.com/flemzord/llmrelay/pkg/app"
	"github.com/spf13/cobra"
)

func usageCmd(flags *globalFlags) *cobra.Command {
	var entries int
	cmd := &cobra.Command{
		Use:   "usage <task-id>",
		Short: "Show recorded token usage and cost for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := app.Bootstrap(cmd.Context(), flags.params(cmd))
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			if _, ok := rt.Config.Modules[sqlite.ModuleID]; !ok {
				return fmt.Errorf("usage: no persistent ledger configured (add a %s module)", sqlite.ModuleID)
			}
			return printUsage(cmd.Context(), cmd.OutOrStdout(), rt.Ledger(), args[0], entries)
		},
	}
	cmd.Flags().IntVarP(&entries, "entries", "n", 0, "Also print the N most recent entries")
	return cmd
}

type usageReport struct {
	Totals  usage.Totals  `json:"totals"`
	Entries []usage.Entry `json:"entries,omitempty"`
}

func printUsage(ctx context.Context, w io.Writer, ledger usage.Ledger, taskID string, entries int) error {
	totals, err := ledger.TaskTotals(ctx, taskID)
	if err != nil {
		return err
	}
	if totals.Calls == 0 {
		return fmt.Errorf("usage: no records for task %q", taskID)
	}
	report := usageReport{Totals: totals}
	if entries > 0 {
		report.Entries, err = ledger.Entries(ctx, taskID, entries)
		if err != nil {
			return err
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
