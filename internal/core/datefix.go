package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// ExifLayout is the EXIF date-time format. EXIF carries no zone; times are
// read as UTC.
const ExifLayout = "2006:01:02 15:04:05"

var (
	// ErrNoCaptureTime marks a photo with no EXIF capture time.
	ErrNoCaptureTime = errors.New("no capture time")
	// ErrBadCaptureTime marks a capture time that does not parse.
	ErrBadCaptureTime = errors.New("malformed capture time")
)

// ParseCaptureTime parses an EXIF date-time as UTC.
func ParseCaptureTime(s string) (time.Time, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "\x00")
	if s == "" {
		return time.Time{}, ErrNoCaptureTime
	}
	t, err := time.ParseInLocation(ExifLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadCaptureTime, s)
	}
	return t, nil
}

// PlanDateFixes returns a patch for every photo whose modification time
// differs from its capture time at second precision. Photos without a
// usable capture time are skipped; onSkip, when set, is told why.
func PlanDateFixes(photos []model.PhotoRecord, onSkip func(p model.PhotoRecord, reason error)) []model.DatePatch {
	var patches []model.DatePatch
	for _, p := range photos {
		captured, err := ParseCaptureTime(p.CaptureTime)
		if err != nil {
			if onSkip != nil {
				onSkip(p, err)
			}
			continue
		}
		if p.ModifiedTime.Truncate(time.Second).Equal(captured) {
			continue
		}
		patches = append(patches, model.DatePatch{
			FileID: p.ID,
			Name:   p.Name,
			From:   p.ModifiedTime,
			To:     captured,
		})
	}
	return patches
}

// DateFixReport is shown before any modification time is changed.
type DateFixReport struct {
	Photos  int               `json:"photos"`
	Probed  int               `json:"probed"`
	Patches []model.DatePatch `json:"patches"`
	Batches int               `json:"batches"`
	Ceiling int               `json:"ceiling"`
}

// DateFixResult is the final state of a datefix run.
type DateFixResult struct {
	RunID     string              `json:"run_id,omitempty"`
	Report    *DateFixReport      `json:"report"`
	Confirmed bool                `json:"confirmed"`
	Outcome   *RemediationOutcome `json:"outcome,omitempty"`
}

// DateFixer sets photo modification times to their EXIF capture time,
// batching patches the same way the Remediator batches trash requests.
type DateFixer struct {
	Fetcher *Fetcher
	Exec    provider.BatchExecutor
	Ceiling int

	// Opener, when set together with ProbeEXIF, reads the EXIF block of
	// photos the backend reported no capture time for.
	Opener    provider.ContentOpener
	ProbeEXIF bool

	Present func(report *DateFixReport) error
	Confirm Confirmer
	OnSkip  func(p model.PhotoRecord, reason error)

	Recorder RunRecorder
	Provider string
	DryRun   bool
}

// Run executes one datefix pass.
func (d *DateFixer) Run(ctx context.Context) (*DateFixResult, error) {
	if err := checkCeiling(d.Exec, d.Ceiling); err != nil {
		return nil, err
	}

	photos, err := d.Fetcher.FetchPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photos: %w", err)
	}

	report := &DateFixReport{Photos: len(photos), Ceiling: d.Ceiling}

	if d.ProbeEXIF && d.Opener != nil {
		photos, report.Probed = ProbeCaptureTimes(ctx, d.Opener, photos)
	}

	report.Patches = PlanDateFixes(photos, d.OnSkip)
	report.Batches = BatchCount(len(report.Patches), d.Ceiling)
	logger.Get().Info().
		Int("photos", report.Photos).
		Int("probed", report.Probed).
		Int("patches", len(report.Patches)).
		Msg("date fixes planned")

	if d.Present != nil {
		if err := d.Present(report); err != nil {
			return nil, fmt.Errorf("failed to present report: %w", err)
		}
	}

	result := &DateFixResult{Report: report}
	if len(report.Patches) == 0 || d.DryRun {
		return result, nil
	}

	runs := runLog{recorder: d.Recorder}
	result.RunID = runs.begin(ctx, model.RunKindDateFix, d.Provider)
	summary := model.RunSummary{Targets: len(report.Patches)}

	if d.Confirm == nil || !d.Confirm("Fix the dates?") {
		runs.finish(ctx, result.RunID, model.RunStateDeclined, summary)
		return result, nil
	}
	result.Confirmed = true

	targets := make([]Target, len(report.Patches))
	for i, p := range report.Patches {
		targets[i] = Target{
			Op: provider.Operation{
				Kind:         provider.OpSetModified,
				FileID:       p.FileID,
				ModifiedTime: p.To,
			},
			Name: p.Name,
		}
	}

	runner := &batchRunner{
		exec:    d.Exec,
		ceiling: d.Ceiling,
		hook: func(ctx context.Context, rep BatchReport) {
			runs.batch(ctx, result.RunID, rep)
		},
	}
	outcome, err := runner.run(ctx, targets)
	result.Outcome = outcome
	runs.finish(ctx, result.RunID, finalState(outcome, err), withOutcome(summary, outcome))

	if err != nil {
		return result, fmt.Errorf("date fixing incomplete: %w", err)
	}
	return result, nil
}
