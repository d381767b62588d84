package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivetidy/drivetidy/internal/core"
	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// DateFixOptions are the flags of the datefix command.
type DateFixOptions struct {
	Yes       bool
	BatchSize int
	ProbeEXIF bool
}

var dateFixOpts DateFixOptions

var datefixCmd = &cobra.Command{
	Use:   "datefix",
	Short: "Set photo modification dates to their EXIF capture date",
	Long: `List JPEG photos, compare each modification time to the EXIF capture
time and update the ones that differ.

Photos without a readable capture time are left alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return newCommandApp(cmd).RunDateFix(cmd.Context(), dateFixOpts)
	},
}

func init() {
	datefixCmd.Flags().BoolVarP(&dateFixOpts.Yes, "yes", "y", false, "Skip the confirmation prompt")
	datefixCmd.Flags().IntVar(&dateFixOpts.BatchSize, "batch-size", 0, "Maximum updates per batch (default from config)")
	datefixCmd.Flags().BoolVar(&dateFixOpts.ProbeEXIF, "probe-exif", false, "Download photos the provider reports no capture time for and read their EXIF")
}

// RunDateFix runs one datefix pass.
func (a *App) RunDateFix(ctx context.Context, opts DateFixOptions) error {
	if opts.BatchSize > 0 {
		a.Config.Batch.DateFixSize = opts.BatchSize
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	recorder, closeLedger := a.recorder()
	defer closeLedger()

	fixer := &core.DateFixer{
		Fetcher:   a.newFetcher(backend),
		Exec:      backend,
		Ceiling:   a.Config.Batch.DateFixSize,
		ProbeEXIF: opts.ProbeEXIF,
		Present: func(r *core.DateFixReport) error {
			renderDateFixReport(a.Out, r, backend.DisplayName(), a.Verbose)
			if a.DryRun && len(r.Patches) > 0 {
				fmt.Fprintln(a.Out, "\n[DRY-RUN] No changes made.")
			}
			return nil
		},
		Confirm: a.confirmer(opts.Yes),
		OnSkip: func(p model.PhotoRecord, reason error) {
			logger.Get().Debug().Err(reason).Str("id", p.ID).Str("name", p.Name).Msg("photo skipped")
		},
		Recorder: recorder,
		Provider: backend.ID(),
		DryRun:   a.DryRun,
	}
	if opener, ok := backend.(provider.ContentOpener); ok {
		fixer.Opener = opener
	} else if opts.ProbeEXIF {
		logger.Get().Warn().Str("backend", backend.ID()).Msg("backend cannot stream content, --probe-exif ignored")
	}

	res, runErr := fixer.Run(ctx)
	if res == nil {
		return runErr
	}

	switch {
	case res.Outcome != nil:
		renderOutcome(a.Out, "Fixed", res.Outcome)
		if res.RunID != "" {
			fmt.Fprintf(a.Out, "\nRecorded as run %s\n", res.RunID)
		}
	case len(res.Report.Patches) > 0 && !a.DryRun && !res.Confirmed:
		fmt.Fprintln(a.Out, "Cancelled. No dates were changed.")
	}

	if runErr != nil {
		return runErr
	}
	if res.Outcome != nil && !res.Outcome.Clean() {
		return fmt.Errorf("%d of %d dates could not be fixed", res.Outcome.Failed+res.Outcome.Skipped, res.Outcome.Targets)
	}
	return nil
}
