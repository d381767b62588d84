package core

// The Remediator is the only path to remote removal.
//
// INVARIANTS:
// - Nothing is trashed without explicit confirmation
// - Representatives are never targeted
// - Each extra gets exactly one trash request
// - A failed operation or batch never stops the rest of the pass

import (
	"context"
	"errors"

	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// ErrNotConfirmed is returned when a destructive pass is requested without
// confirmation.
var ErrNotConfirmed = errors.New("remediation requires explicit confirmation")

// RemediationPreview shows what a pass would trash.
type RemediationPreview struct {
	Targets              []model.FileRecord
	TotalBytes           int64
	Batches              int
	Ceiling              int
	RequiresConfirmation bool // always true
}

// Remediator moves duplicate extras to the trash in capped batches.
type Remediator struct {
	exec    provider.BatchExecutor
	ceiling int

	// OnBatch, when set, is called after every executed batch.
	OnBatch func(ctx context.Context, rep BatchReport)
}

// NewRemediator creates a remediator that sends at most ceiling operations
// per batch to exec.
func NewRemediator(exec provider.BatchExecutor, ceiling int) (*Remediator, error) {
	if err := checkCeiling(exec, ceiling); err != nil {
		return nil, err
	}
	return &Remediator{
		exec:    exec,
		ceiling: ceiling,
	}, nil
}

// Ceiling returns the configured batch ceiling.
func (r *Remediator) Ceiling() int {
	return r.ceiling
}

// Preview computes the removal plan without touching the remote.
func (r *Remediator) Preview(sets []model.DuplicateSet) *RemediationPreview {
	targets := RemovalTargets(sets)
	return &RemediationPreview{
		Targets:              targets,
		TotalBytes:           ReclaimableBytes(sets),
		Batches:              BatchCount(len(targets), r.ceiling),
		Ceiling:              r.ceiling,
		RequiresConfirmation: true,
	}
}

// Execute trashes every non-representative member of every set.
// The returned outcome is non-nil whenever any batch was attempted, even
// when an error is returned.
func (r *Remediator) Execute(ctx context.Context, sets []model.DuplicateSet, confirmed bool) (*RemediationOutcome, error) {
	return r.execute(ctx, sets, confirmed, r.OnBatch)
}

func (r *Remediator) execute(ctx context.Context, sets []model.DuplicateSet, confirmed bool, hook func(context.Context, BatchReport)) (*RemediationOutcome, error) {
	if !confirmed {
		return nil, ErrNotConfirmed
	}

	extras := RemovalTargets(sets)
	targets := make([]Target, len(extras))
	for i, rec := range extras {
		targets[i] = Target{
			Op:   provider.Operation{Kind: provider.OpTrash, FileID: rec.ID},
			Name: rec.Name,
		}
	}

	runner := &batchRunner{
		exec:    r.exec,
		ceiling: r.ceiling,
		hook:    hook,
	}
	return runner.run(ctx, targets)
}
