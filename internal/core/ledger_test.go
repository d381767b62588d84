package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

func openTestLedger(t *testing.T, passphrase string) (*Ledger, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	store, err := OpenEncryptedDB(dbPath, passphrase)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewLedger(store), dbPath
}

func trashTargets(ids ...string) []Target {
	targets := make([]Target, len(ids))
	for i, id := range ids {
		targets[i] = Target{Op: provider.Operation{Kind: provider.OpTrash, FileID: id}, Name: id + ".bin"}
	}
	return targets
}

func TestLedger_RunRoundTrip(t *testing.T) {
	ledger, _ := openTestLedger(t, "")
	ctx := context.Background()

	runID, err := ledger.BeginRun(ctx, model.RunKindDedupe, "gdrive")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	run, err := ledger.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatePending, run.State)
	assert.Equal(t, "gdrive", run.Provider)
	assert.Nil(t, run.FinishedAt)
	assert.WithinDuration(t, time.Now(), run.StartedAt, time.Minute)

	denied := errors.New("insufficient permissions")
	require.NoError(t, ledger.RecordBatch(ctx, runID, BatchReport{
		Index:   0,
		Targets: trashTargets("a", "b"),
		Errs:    []error{nil, denied},
	}))
	require.NoError(t, ledger.RecordBatch(ctx, runID, BatchReport{
		Index:   1,
		Targets: trashTargets("c"),
		Errs:    make([]error, 1),
		Err:     errors.New("connection reset"),
	}))

	summary := model.RunSummary{
		Sets: 3, Targets: 3, ReclaimableBytes: 4096,
		BatchesAttempted: 2, BatchesSucceeded: 1,
		Succeeded: 1, Failed: 2,
	}
	require.NoError(t, ledger.FinishRun(ctx, runID, model.RunStatePartial, summary))

	run, err = ledger.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatePartial, run.State)
	assert.Equal(t, summary, run.Summary)
	require.NotNil(t, run.FinishedAt)

	ops, err := ledger.RunOperations(ctx, runID, false)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "a", ops[0].FileID)
	assert.Equal(t, model.OperationStateSucceeded, ops[0].State)
	assert.Empty(t, ops[0].Error)
	assert.Equal(t, model.OperationStateFailed, ops[1].State)
	assert.Equal(t, "insufficient permissions", ops[1].Error)
	assert.Equal(t, 1, ops[2].BatchIndex)
	assert.Equal(t, "connection reset", ops[2].Error)

	failed, err := ledger.RunOperations(ctx, runID, true)
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestLedger_ListRunsNewestFirst(t *testing.T) {
	ledger, _ := openTestLedger(t, "")
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	ledger.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := ledger.BeginRun(ctx, model.RunKindDedupe, "gdrive")
	require.NoError(t, err)
	second, err := ledger.BeginRun(ctx, model.RunKindDateFix, "rclone")
	require.NoError(t, err)

	runs, err := ledger.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, model.RunKindDateFix, runs[0].Kind)
	assert.Equal(t, first, runs[1].ID)

	limited, err := ledger.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second, limited[0].ID)
}

func TestLedger_UnknownRun(t *testing.T) {
	ledger, _ := openTestLedger(t, "")
	ctx := context.Background()

	_, err := ledger.GetRun(ctx, "missing")
	require.ErrorIs(t, err, ErrRunNotFound)

	err = ledger.FinishRun(ctx, "missing", model.RunStateCompleted, model.RunSummary{})
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestLedger_ImplementsRunRecorder(t *testing.T) {
	var _ RunRecorder = (*Ledger)(nil)
}

func TestOpenEncryptedDB_Passphrase(t *testing.T) {
	ledger, dbPath := openTestLedger(t, "correct horse")
	ctx := context.Background()

	runID, err := ledger.BeginRun(ctx, model.RunKindDedupe, "gdrive")
	require.NoError(t, err)

	reopened, err := OpenEncryptedDB(dbPath, "correct horse")
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.IsEncrypted())

	version, err := reopened.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	run, err := NewLedger(reopened).GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)

	_, err = OpenEncryptedDB(dbPath, "wrong")
	require.Error(t, err)
}
