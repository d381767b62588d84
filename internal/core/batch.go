package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/provider"
)

var (
	// ErrInvalidCeiling is returned for a batch ceiling below one or above
	// what the backend accepts.
	ErrInvalidCeiling = errors.New("invalid batch ceiling")

	// ErrNoResult marks an operation the backend returned no result for.
	ErrNoResult = errors.New("backend reported no result for operation")
)

// batchFold is the accumulator threaded through PlanBatches. Each add
// returns a new value; a batch is sealed the moment it reaches the ceiling.
type batchFold[T any] struct {
	ceiling int
	sealed  [][]T
	open    []T
}

func (f batchFold[T]) add(item T) batchFold[T] {
	f.open = append(f.open, item)
	if len(f.open) == f.ceiling {
		f.sealed = append(f.sealed, f.open)
		f.open = nil
	}
	return f
}

func (f batchFold[T]) finish() [][]T {
	if len(f.open) > 0 {
		return append(f.sealed, f.open)
	}
	return f.sealed
}

// PlanBatches splits items into consecutive batches of at most ceiling
// items, preserving order. k items yield ceil(k/ceiling) batches; no items
// yield none.
func PlanBatches[T any](items []T, ceiling int) ([][]T, error) {
	if ceiling < 1 {
		return nil, fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidCeiling, ceiling)
	}

	acc := batchFold[T]{ceiling: ceiling}
	for _, item := range items {
		acc = acc.add(item)
	}
	return acc.finish(), nil
}

// BatchCount returns how many batches k items need under ceiling.
func BatchCount(k, ceiling int) int {
	if k <= 0 || ceiling < 1 {
		return 0
	}
	return (k + ceiling - 1) / ceiling
}

// Target is one remote operation plus the name of the file it touches.
type Target struct {
	Op   provider.Operation
	Name string
}

// OperationFailure records one operation that did not succeed.
type OperationFailure struct {
	BatchIndex int
	FileID     string
	Name       string
	Err        error
	Transport  bool // the whole batch failed, not this operation alone
}

// BatchFailure records a batch that never reached the service.
type BatchFailure struct {
	Index int
	Size  int
	Err   error
}

// BatchReport is what one executed batch produced.
// Errs holds one entry per target; Err is set when the batch call failed.
type BatchReport struct {
	Index   int
	Targets []Target
	Errs    []error
	Err     error
}

// RemediationOutcome aggregates every batch of a pass.
type RemediationOutcome struct {
	Targets          int                `json:"targets"`
	BatchesPlanned   int                `json:"batches_planned"`
	BatchesAttempted int                `json:"batches_attempted"`
	BatchesSucceeded int                `json:"batches_succeeded"`
	Succeeded        int                `json:"succeeded"`
	Failed           int                `json:"failed"`
	Skipped          int                `json:"skipped"`
	Failures         []OperationFailure `json:"-"`
	BatchFailures    []BatchFailure     `json:"-"`
}

func (o *RemediationOutcome) absorb(rep BatchReport) {
	o.BatchesAttempted++

	if rep.Err != nil {
		o.BatchFailures = append(o.BatchFailures, BatchFailure{
			Index: rep.Index,
			Size:  len(rep.Targets),
			Err:   rep.Err,
		})
		for _, t := range rep.Targets {
			o.Failed++
			o.Failures = append(o.Failures, OperationFailure{
				BatchIndex: rep.Index,
				FileID:     t.Op.FileID,
				Name:       t.Name,
				Err:        rep.Err,
				Transport:  true,
			})
		}
		return
	}

	o.BatchesSucceeded++
	for i, t := range rep.Targets {
		if rep.Errs[i] == nil {
			o.Succeeded++
			continue
		}
		o.Failed++
		o.Failures = append(o.Failures, OperationFailure{
			BatchIndex: rep.Index,
			FileID:     t.Op.FileID,
			Name:       t.Name,
			Err:        rep.Errs[i],
		})
	}
}

// Clean reports whether every planned operation succeeded.
func (o *RemediationOutcome) Clean() bool {
	return o.Failed == 0 && o.Skipped == 0
}

// Err aggregates batch and operation failures, or returns nil.
func (o *RemediationOutcome) Err() error {
	var errs *multierror.Error
	for _, bf := range o.BatchFailures {
		errs = multierror.Append(errs, fmt.Errorf("batch %d (%d operations): %w", bf.Index+1, bf.Size, bf.Err))
	}
	for _, f := range o.Failures {
		if f.Transport {
			continue
		}
		errs = multierror.Append(errs, fmt.Errorf("%s (%s): %w", f.FileID, f.Name, f.Err))
	}
	return errs.ErrorOrNil()
}

// batchRunner executes planned batches strictly one after another.
type batchRunner struct {
	exec    provider.BatchExecutor
	ceiling int
	hook    func(ctx context.Context, rep BatchReport)
}

func checkCeiling(exec provider.BatchExecutor, ceiling int) error {
	if ceiling < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d", ErrInvalidCeiling, ceiling)
	}
	if limit := exec.MaxBatchSize(); limit > 0 && ceiling > limit {
		return fmt.Errorf("%w: backend accepts at most %d operations per batch, got %d", ErrInvalidCeiling, limit, ceiling)
	}
	return nil
}

// run executes every target exactly once. A submitted batch always runs to
// completion; cancellation is only observed between batches, and whatever
// has not been submitted yet is counted as skipped.
func (r *batchRunner) run(ctx context.Context, targets []Target) (*RemediationOutcome, error) {
	batches, err := PlanBatches(targets, r.ceiling)
	if err != nil {
		return nil, err
	}

	out := &RemediationOutcome{
		Targets:        len(targets),
		BatchesPlanned: len(batches),
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			for _, rest := range batches[i:] {
				out.Skipped += len(rest)
			}
			logger.Get().Warn().Int("batch", i+1).Int("skipped", out.Skipped).Msg("stopping before next batch")
			return out, fmt.Errorf("interrupted before batch %d of %d: %w", i+1, len(batches), err)
		}

		rep := r.execute(ctx, i, batch)
		out.absorb(rep)

		if rep.Err != nil {
			logger.Get().Error().Err(rep.Err).Int("batch", i+1).Int("of", len(batches)).Int("size", len(batch)).Msg("batch failed")
		} else {
			logger.Get().Info().Int("batch", i+1).Int("of", len(batches)).Int("size", len(batch)).Msg("batch executed")
		}

		if r.hook != nil {
			r.hook(ctx, rep)
		}
	}

	return out, nil
}

func (r *batchRunner) execute(ctx context.Context, index int, batch []Target) BatchReport {
	ops := make([]provider.Operation, len(batch))
	for i, t := range batch {
		ops[i] = t.Op
	}

	rep := BatchReport{
		Index:   index,
		Targets: batch,
		Errs:    make([]error, len(batch)),
	}

	results, err := r.exec.ExecuteBatch(context.WithoutCancel(ctx), ops)
	if err != nil {
		rep.Err = err
		return rep
	}

	byID := make(map[string]error, len(results))
	reported := make(map[string]bool, len(results))
	for _, res := range results {
		byID[res.FileID] = res.Err
		reported[res.FileID] = true
	}
	for i, t := range batch {
		if !reported[t.Op.FileID] {
			rep.Errs[i] = ErrNoResult
			continue
		}
		rep.Errs[i] = byID[t.Op.FileID]
	}
	return rep
}
