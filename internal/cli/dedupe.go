package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivetidy/drivetidy/internal/config"
	"github.com/drivetidy/drivetidy/internal/core"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// DedupeOptions are the flags of the dedupe command.
type DedupeOptions struct {
	Yes      bool
	Ceiling  int
	Reliable bool
}

var (
	scanJSON   bool
	dedupeOpts DedupeOptions
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Report duplicate files without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCommandApp(cmd).RunScan(cmd.Context(), scanJSON)
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Move duplicate files to the trash",
	Long: `Find every set of files with identical content, keep the first file of
each set and move the others to the trash in batches.

Nothing is trashed until you confirm the report. Trashed files can be
restored: Google Drive keeps them in its trash, and rclone moves them
into rclone.trash_dir. An rclone remote without a trash_dir is refused.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCommandApp(cmd).RunDedupe(cmd.Context(), dedupeOpts)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the report as JSON")

	dedupeCmd.Flags().BoolVarP(&dedupeOpts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	dedupeCmd.Flags().IntVar(&dedupeOpts.Ceiling, "ceiling", 0, "Maximum operations per batch (default from config)")
	dedupeCmd.Flags().BoolVar(&dedupeOpts.Reliable, "reliable", false, fmt.Sprintf("Use smaller batches of %d", config.ReliableBatchCeiling))
}

// RunScan prints the duplicate report without confirming or trashing.
func (a *App) RunScan(ctx context.Context, jsonOut bool) error {
	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	rem, err := core.NewRemediator(backend, a.Config.Batch.Ceiling)
	if err != nil {
		return err
	}

	d := &core.Deduper{
		Fetcher:    a.newFetcher(backend),
		Remediator: rem,
		Present: func(r *core.DuplicateReport) error {
			if jsonOut {
				return writeJSON(a.Out, r)
			}
			renderDuplicateReport(a.Out, r, backend.DisplayName())
			return nil
		},
		Provider: backend.ID(),
		DryRun:   true,
	}

	_, err = d.Run(ctx)
	return err
}

// RunDedupe runs a full dedupe pass.
func (a *App) RunDedupe(ctx context.Context, opts DedupeOptions) error {
	switch {
	case opts.Ceiling > 0:
		a.Config.Batch.Ceiling = opts.Ceiling
	case opts.Reliable:
		a.Config.Batch.Ceiling = config.ReliableBatchCeiling
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	if tc, ok := backend.(provider.TrashChecker); ok && !tc.CanTrash() && !a.DryRun {
		return fmt.Errorf("%s: %w (set rclone.trash_dir)", backend.DisplayName(), provider.ErrNoTrash)
	}

	rem, err := core.NewRemediator(backend, a.Config.Batch.Ceiling)
	if err != nil {
		return err
	}

	recorder, closeLedger := a.recorder()
	defer closeLedger()

	var batches int
	d := &core.Deduper{
		Fetcher:    a.newFetcher(backend),
		Remediator: rem,
		Present: func(r *core.DuplicateReport) error {
			batches = r.Batches
			renderDuplicateReport(a.Out, r, backend.DisplayName())
			if a.DryRun && !r.Empty() {
				fmt.Fprintln(a.Out, "\n[DRY-RUN] No changes made.")
			}
			return nil
		},
		Confirm:  a.confirmer(opts.Yes),
		Recorder: recorder,
		Provider: backend.ID(),
		DryRun:   a.DryRun,
	}
	rem.OnBatch = func(ctx context.Context, rep core.BatchReport) {
		renderBatch(a.Out, rep, batches)
	}

	res, runErr := d.Run(ctx)
	if res == nil {
		return runErr
	}

	switch {
	case res.Outcome != nil:
		renderOutcome(a.Out, "Trashed", res.Outcome,
			fmt.Sprintf("%-16s %d", "Duplicate sets:", len(res.Report.Sets)),
			fmt.Sprintf("%-16s %.2f GB", "Reclaimable:", res.Report.Gigabytes()),
		)
		if res.RunID != "" {
			fmt.Fprintf(a.Out, "\nRecorded as run %s (see `drivetidy history show %s`)\n", res.RunID, res.RunID)
		}
	case !res.Report.Empty() && !a.DryRun && !res.Confirmed:
		fmt.Fprintln(a.Out, "Cancelled. Nothing was trashed.")
	}

	if runErr != nil {
		return runErr
	}
	if res.Outcome != nil && !res.Outcome.Clean() {
		return fmt.Errorf("%d of %d files could not be trashed", res.Outcome.Failed+res.Outcome.Skipped, res.Outcome.Targets)
	}
	return nil
}
