package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyJSON   bool
	historyFailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded dedupe and datefix runs",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCommandApp(cmd).RunHistoryList(cmd.Context(), historyLimit, historyJSON)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its per-file outcomes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCommandApp(cmd).RunHistoryShow(cmd.Context(), args[0], historyFailed, historyJSON)
	},
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Print as JSON")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show (0 for all)")
	historyShowCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only show failed operations")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}

var errLedgerDisabled = errors.New("run history is disabled (ledger.enabled = false)")

// RunHistoryList prints recent runs.
func (a *App) RunHistoryList(ctx context.Context, limit int, jsonOut bool) error {
	ledger, closeLedger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer closeLedger()
	if ledger == nil {
		return errLedgerDisabled
	}

	runs, err := ledger.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeJSON(a.Out, runs)
	}
	renderRuns(a.Out, runs)
	return nil
}

// RunHistoryShow prints one run.
func (a *App) RunHistoryShow(ctx context.Context, runID string, failedOnly, jsonOut bool) error {
	ledger, closeLedger, err := a.openLedger()
	if err != nil {
		return err
	}
	defer closeLedger()
	if ledger == nil {
		return errLedgerDisabled
	}

	run, err := ledger.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	ops, err := ledger.RunOperations(ctx, runID, failedOnly)
	if err != nil {
		return err
	}

	if jsonOut {
		return writeJSON(a.Out, struct {
			Run        any `json:"run"`
			Operations any `json:"operations"`
		}{run, ops})
	}
	renderRun(a.Out, run, ops)
	return nil
}
