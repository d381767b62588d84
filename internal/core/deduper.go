package core

import (
	"context"
	"fmt"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/model"
)

// Confirmer asks for a yes/no decision. It is called at most once per run,
// after the report has been presented.
type Confirmer func(prompt string) bool

// RunRecorder persists run history. Recording errors never fail a run.
type RunRecorder interface {
	BeginRun(ctx context.Context, kind model.RunKind, providerName string) (string, error)
	RecordBatch(ctx context.Context, runID string, rep BatchReport) error
	FinishRun(ctx context.Context, runID string, state model.RunState, summary model.RunSummary) error
}

// DuplicateReport is everything shown to the user before anything is trashed.
type DuplicateReport struct {
	Files            int                  `json:"files"`
	Sets             []model.DuplicateSet `json:"sets"`
	Targets          int                  `json:"targets"`
	ReclaimableBytes int64                `json:"reclaimable_bytes"`
	Batches          int                  `json:"batches"`
	Ceiling          int                  `json:"ceiling"`
}

// Gigabytes returns the reclaimable total in gigabytes.
func (r *DuplicateReport) Gigabytes() float64 {
	return Gigabytes(r.ReclaimableBytes)
}

// Empty reports whether no duplicates were found.
func (r *DuplicateReport) Empty() bool {
	return len(r.Sets) == 0
}

// DedupeResult is the final state of a dedupe run.
type DedupeResult struct {
	RunID     string              `json:"run_id,omitempty"`
	Report    *DuplicateReport    `json:"report"`
	Confirmed bool                `json:"confirmed"`
	Outcome   *RemediationOutcome `json:"outcome,omitempty"`
}

// Deduper wires fetch, index, report, confirm and remediate together.
type Deduper struct {
	Fetcher    *Fetcher
	Remediator *Remediator

	// Present renders the report. It runs before Confirm.
	Present func(report *DuplicateReport) error
	// Confirm gates remediation. A nil Confirm declines.
	Confirm Confirmer

	Recorder RunRecorder
	Provider string

	// DryRun stops after the report.
	DryRun bool
}

// Run executes one dedupe pass.
// When remediation was attempted the result is returned together with any
// error so the caller can always report counts.
func (d *Deduper) Run(ctx context.Context) (*DedupeResult, error) {
	records, err := d.Fetcher.FetchFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}

	sets := Index(records)
	preview := d.Remediator.Preview(sets)
	report := &DuplicateReport{
		Files:            len(records),
		Sets:             sets,
		Targets:          len(preview.Targets),
		ReclaimableBytes: preview.TotalBytes,
		Batches:          preview.Batches,
		Ceiling:          preview.Ceiling,
	}
	logger.Get().Info().
		Int("files", report.Files).
		Int("sets", len(sets)).
		Int64("reclaimable_bytes", report.ReclaimableBytes).
		Msg("duplicate index built")

	if d.Present != nil {
		if err := d.Present(report); err != nil {
			return nil, fmt.Errorf("failed to present report: %w", err)
		}
	}

	result := &DedupeResult{Report: report}
	if report.Empty() || d.DryRun {
		return result, nil
	}

	runs := runLog{recorder: d.Recorder}
	result.RunID = runs.begin(ctx, model.RunKindDedupe, d.Provider)

	summary := model.RunSummary{
		Sets:             len(sets),
		Targets:          report.Targets,
		ReclaimableBytes: report.ReclaimableBytes,
	}

	if d.Confirm == nil || !d.Confirm("Trash the extras?") {
		runs.finish(ctx, result.RunID, model.RunStateDeclined, summary)
		return result, nil
	}
	result.Confirmed = true

	hook := func(ctx context.Context, rep BatchReport) {
		runs.batch(ctx, result.RunID, rep)
		if d.Remediator.OnBatch != nil {
			d.Remediator.OnBatch(ctx, rep)
		}
	}
	outcome, err := d.Remediator.execute(ctx, sets, true, hook)
	result.Outcome = outcome
	runs.finish(ctx, result.RunID, finalState(outcome, err), withOutcome(summary, outcome))

	if err != nil {
		return result, fmt.Errorf("remediation incomplete: %w", err)
	}
	return result, nil
}

func finalState(out *RemediationOutcome, err error) model.RunState {
	switch {
	case out == nil:
		return model.RunStateFailed
	case err == nil && out.Clean():
		return model.RunStateCompleted
	case out.Succeeded == 0:
		return model.RunStateFailed
	default:
		return model.RunStatePartial
	}
}

func withOutcome(s model.RunSummary, out *RemediationOutcome) model.RunSummary {
	if out == nil {
		return s
	}
	s.BatchesAttempted = out.BatchesAttempted
	s.BatchesSucceeded = out.BatchesSucceeded
	s.Succeeded = out.Succeeded
	s.Failed = out.Failed
	s.Skipped = out.Skipped
	return s
}

// runLog forwards to an optional RunRecorder and downgrades its errors to
// warnings.
type runLog struct {
	recorder RunRecorder
}

func (l runLog) begin(ctx context.Context, kind model.RunKind, providerName string) string {
	if l.recorder == nil {
		return ""
	}
	id, err := l.recorder.BeginRun(ctx, kind, providerName)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("failed to record run start")
		return ""
	}
	return id
}

func (l runLog) batch(ctx context.Context, runID string, rep BatchReport) {
	if l.recorder == nil || runID == "" {
		return
	}
	if err := l.recorder.RecordBatch(context.WithoutCancel(ctx), runID, rep); err != nil {
		logger.Get().Warn().Err(err).Int("batch", rep.Index+1).Msg("failed to record batch")
	}
}

func (l runLog) finish(ctx context.Context, runID string, state model.RunState, summary model.RunSummary) {
	if l.recorder == nil || runID == "" {
		return
	}
	if err := l.recorder.FinishRun(context.WithoutCancel(ctx), runID, state, summary); err != nil {
		logger.Get().Warn().Err(err).Msg("failed to record run result")
	}
}
