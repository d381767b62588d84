package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drivetidy/drivetidy/internal/model"
)

// ErrRunNotFound is returned when a run ID is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// Fixed-width so stored times sort as text.
const ledgerTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger records runs, batches and per-file outcomes. It implements
// RunRecorder.
type Ledger struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewLedger creates a ledger over an opened store.
func NewLedger(store *EncryptedDB) *Ledger {
	return &Ledger{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// BeginRun records a new pending run and returns its ID.
func (l *Ledger) BeginRun(ctx context.Context, kind model.RunKind, providerName string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	runID := uuid.New().String()

	query := `
		INSERT INTO runs (id, kind, provider, state, started_at)
		VALUES (?, ?, ?, 'pending', ?)
	`
	_, err := l.db.ExecContext(ctx, query, runID, string(kind), providerName, l.now().Format(ledgerTimeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}

	return runID, nil
}

// RecordBatch stores one row per operation in rep.
func (l *Ledger) RecordBatch(ctx context.Context, runID string, rep BatchReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operations (run_id, batch_index, file_id, name, state, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := l.now().Format(ledgerTimeLayout)
	for i, t := range rep.Targets {
		opErr := rep.Err
		if opErr == nil && i < len(rep.Errs) {
			opErr = rep.Errs[i]
		}

		state := model.OperationStateSucceeded
		var errText sql.NullString
		if opErr != nil {
			state = model.OperationStateFailed
			errText = sql.NullString{String: opErr.Error(), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, runID, rep.Index, t.Op.FileID, t.Name, string(state), errText, recordedAt); err != nil {
			return fmt.Errorf("failed to record operation %s: %w", t.Op.FileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// FinishRun stores the final state and counters of a run.
func (l *Ledger) FinishRun(ctx context.Context, runID string, state model.RunState, s model.RunSummary) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := `
		UPDATE runs SET state = ?, sets = ?, targets = ?, reclaimable_bytes = ?,
			batches_attempted = ?, batches_succeeded = ?,
			succeeded = ?, failed = ?, skipped = ?, finished_at = ?
		WHERE id = ?
	`
	res, err := l.db.ExecContext(ctx, query,
		string(state), s.Sets, s.Targets, s.ReclaimableBytes,
		s.BatchesAttempted, s.BatchesSucceeded,
		s.Succeeded, s.Failed, s.Skipped, l.now().Format(ledgerTimeLayout),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `id, kind, provider, state, sets, targets, reclaimable_bytes,
	batches_attempted, batches_succeeded, succeeded, failed, skipped, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var kind, state, startedAt string
	var finishedAt sql.NullString

	err := row.Scan(
		&run.ID, &kind, &run.Provider, &state,
		&run.Summary.Sets, &run.Summary.Targets, &run.Summary.ReclaimableBytes,
		&run.Summary.BatchesAttempted, &run.Summary.BatchesSucceeded,
		&run.Summary.Succeeded, &run.Summary.Failed, &run.Summary.Skipped,
		&startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Kind = model.RunKind(kind)
	run.State = model.RunState(state)
	run.StartedAt, _ = time.Parse(ledgerTimeLayout, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(ledgerTimeLayout, finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// ListRuns returns the most recent runs first. A limit of zero or less
// returns every run.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// GetRun returns one run by ID.
func (l *Ledger) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	row := l.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// RunOperations returns the recorded operations of a run in execution
// order. When failedOnly is set only failures are returned.
func (l *Ledger) RunOperations(ctx context.Context, runID string, failedOnly bool) ([]*model.OperationRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := `
		SELECT id, run_id, batch_index, file_id, name, state, error, recorded_at
		FROM operations WHERE run_id = ?
	`
	if failedOnly {
		query += " AND state = 'failed'"
	}
	query += " ORDER BY id ASC"

	rows, err := l.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []*model.OperationRecord
	for rows.Next() {
		var op model.OperationRecord
		var state, recordedAt string
		var errText sql.NullString

		err := rows.Scan(&op.ID, &op.RunID, &op.BatchIndex, &op.FileID, &op.Name, &state, &errText, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		op.State = model.OperationState(state)
		op.Error = errText.String
		op.RecordedAt, _ = time.Parse(ledgerTimeLayout, recordedAt)
		ops = append(ops, &op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	return ops, nil
}
