package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivetidy/drivetidy/internal/config"
	"github.com/drivetidy/drivetidy/internal/core"
	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

type memoryBackend struct {
	files []provider.RemoteFile

	mu      sync.Mutex
	trashed []string
	touched map[string]time.Time
}

func (m *memoryBackend) ID() string          { return "memory" }
func (m *memoryBackend) Type() string        { return "memory" }
func (m *memoryBackend) DisplayName() string { return "Memory" }
func (m *memoryBackend) MaxBatchSize() int   { return 1000 }

func (m *memoryBackend) ListPage(ctx context.Context, q provider.ListQuery) (*provider.Page, error) {
	return &provider.Page{Files: m.files}, nil
}

func (m *memoryBackend) ExecuteBatch(ctx context.Context, ops []provider.Operation) ([]provider.OpResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]provider.OpResult, len(ops))
	for i, op := range ops {
		switch op.Kind {
		case provider.OpTrash:
			m.trashed = append(m.trashed, op.FileID)
		case provider.OpSetModified:
			if m.touched == nil {
				m.touched = make(map[string]time.Time)
			}
			m.touched[op.FileID] = op.ModifiedTime
		}
		results[i] = provider.OpResult{FileID: op.FileID}
	}
	return results, nil
}

// trashlessBackend is a backend configured without any trash.
type trashlessBackend struct {
	*memoryBackend
}

func (trashlessBackend) CanTrash() bool { return false }

func newTestApp(t *testing.T, backend provider.Backend, input string) (*App, *bytes.Buffer) {
	t.Helper()

	cfg := config.Default()
	cfg.Provider = "memory"
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger.db")

	registry := provider.NewRegistry()
	require.NoError(t, registry.Register("memory", func(context.Context) (provider.Backend, error) {
		return backend, nil
	}))

	out := &bytes.Buffer{}
	return &App{
		Config:   cfg,
		Registry: registry,
		In:       strings.NewReader(input),
		Out:      out,
	}, out
}

func duplicateFiles() []provider.RemoteFile {
	return []provider.RemoteFile{
		{ID: "1", Name: "a.jpg", Fingerprint: "x", QuotaBytes: 10, ViewLink: "https://drive/1"},
		{ID: "2", Name: "a copy.jpg", Fingerprint: "x", QuotaBytes: 20},
		{ID: "3", Name: "b.jpg", Fingerprint: "y", QuotaBytes: 5},
		{ID: "4", Name: "folder"},
	}
}

func TestRunScan_JSON(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, out := newTestApp(t, backend, "")

	require.NoError(t, app.RunScan(context.Background(), true))

	var report core.DuplicateReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 3, report.Files)
	require.Len(t, report.Sets, 1)
	assert.Equal(t, int64(20), report.ReclaimableBytes)
	assert.Empty(t, backend.trashed)
}

func TestRunDedupe_Confirmed(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, out := newTestApp(t, backend, "y\n")

	require.NoError(t, app.RunDedupe(context.Background(), DedupeOptions{}))

	assert.Equal(t, []string{"2"}, backend.trashed)
	text := out.String()
	assert.Contains(t, text, "Duplicate sets on Memory (1)")
	assert.Contains(t, text, "a copy.jpg")
	assert.Contains(t, text, "https://drive/1")
	assert.Contains(t, text, "[y/N]")
	assert.Contains(t, text, "Trashed:")
	assert.Contains(t, text, "Recorded as run")

	runs := listRuns(t, app)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStateCompleted, runs[0].State)
	assert.Equal(t, 1, runs[0].Summary.Succeeded)
}

func TestRunDedupe_Declined(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, out := newTestApp(t, backend, "n\n")

	require.NoError(t, app.RunDedupe(context.Background(), DedupeOptions{}))

	assert.Empty(t, backend.trashed)
	assert.Contains(t, out.String(), "Cancelled. Nothing was trashed.")

	runs := listRuns(t, app)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStateDeclined, runs[0].State)
}

func TestRunDedupe_RefusesBackendWithoutTrash(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, out := newTestApp(t, trashlessBackend{backend}, "y\n")

	err := app.RunDedupe(context.Background(), DedupeOptions{Yes: true})
	require.ErrorIs(t, err, provider.ErrNoTrash)
	assert.Empty(t, backend.trashed)
	assert.Empty(t, out.String())

	// A report-only pass still works.
	require.NoError(t, app.RunScan(context.Background(), false))
	assert.Contains(t, out.String(), "a copy.jpg")
}

func TestRunDedupe_DryRun(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, out := newTestApp(t, backend, "y\n")
	app.DryRun = true

	require.NoError(t, app.RunDedupe(context.Background(), DedupeOptions{Yes: true}))

	assert.Empty(t, backend.trashed)
	assert.Contains(t, out.String(), "[DRY-RUN]")
	assert.Empty(t, listRuns(t, app))
}

func TestRunDedupe_CeilingFlags(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, _ := newTestApp(t, backend, "")

	require.NoError(t, app.RunDedupe(context.Background(), DedupeOptions{Yes: true, Reliable: true}))
	assert.Equal(t, config.ReliableBatchCeiling, app.Config.Batch.Ceiling)

	app, _ = newTestApp(t, &memoryBackend{files: duplicateFiles()}, "")
	err := app.RunDedupe(context.Background(), DedupeOptions{Yes: true, Ceiling: 5000})
	require.Error(t, err)
}

func TestRunDateFix(t *testing.T) {
	modified := time.Date(2024, 3, 3, 3, 3, 3, 0, time.UTC)
	backend := &memoryBackend{files: []provider.RemoteFile{
		{ID: "p1", Name: "beach.jpg", CaptureTime: "2019:06:01 12:30:45", ModifiedTime: modified},
		{ID: "p2", Name: "scan.jpg", ModifiedTime: modified},
	}}
	app, out := newTestApp(t, backend, "")

	require.NoError(t, app.RunDateFix(context.Background(), DateFixOptions{Yes: true}))

	assert.Equal(t, time.Date(2019, 6, 1, 12, 30, 45, 0, time.UTC), backend.touched["p1"])
	assert.NotContains(t, backend.touched, "p2")
	assert.Contains(t, out.String(), "Photos with wrong dates on Memory (1)")
	assert.Contains(t, out.String(), "beach.jpg")
	assert.Contains(t, out.String(), "Fixed:")
}

func TestRunHistoryShow(t *testing.T) {
	backend := &memoryBackend{files: duplicateFiles()}
	app, out := newTestApp(t, backend, "")
	require.NoError(t, app.RunDedupe(context.Background(), DedupeOptions{Yes: true}))

	runs := listRuns(t, app)
	require.Len(t, runs, 1)

	out.Reset()
	require.NoError(t, app.RunHistoryShow(context.Background(), runs[0].ID, false, false))
	assert.Contains(t, out.String(), runs[0].ID)
	assert.Contains(t, out.String(), "a copy.jpg")

	out.Reset()
	require.NoError(t, app.RunHistoryList(context.Background(), 10, false))
	assert.Contains(t, out.String(), runs[0].ID)

	require.ErrorIs(t, app.RunHistoryShow(context.Background(), "missing", false, false), core.ErrRunNotFound)
}

func TestRunHistory_LedgerDisabled(t *testing.T) {
	app, _ := newTestApp(t, &memoryBackend{}, "")
	app.Config.Ledger.Enabled = false

	require.ErrorIs(t, app.RunHistoryList(context.Background(), 10, false), errLedgerDisabled)
}

func TestOpenBackend_Unknown(t *testing.T) {
	app, _ := newTestApp(t, &memoryBackend{}, "")
	app.Config.Provider = "dropbox"

	_, err := app.openBackend(context.Background())
	require.ErrorIs(t, err, provider.ErrUnknownBackend)
}

func TestConfirmAction(t *testing.T) {
	for input, want := range map[string]bool{
		"y\n":   true,
		"YES\n": true,
		" yes ": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"sure":  false,
	} {
		var out bytes.Buffer
		assert.Equal(t, want, ConfirmAction(strings.NewReader(input), &out, "Proceed?"), "input %q", input)
		assert.Equal(t, "Proceed? [y/N]: ", out.String())
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KB", formatBytes(1024))
	assert.Equal(t, "1.5 MB", formatBytes(3<<19))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}

func listRuns(t *testing.T, app *App) []*model.Run {
	t.Helper()

	ledger, closeLedger, err := app.openLedger()
	require.NoError(t, err)
	defer closeLedger()

	runs, err := ledger.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	return runs
}
