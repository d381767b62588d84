package core

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// fakeLister serves pages addressed by their index as page token.
type fakeLister struct {
	pages []provider.Page
	err   error

	mu    sync.Mutex
	calls []provider.ListQuery
}

func (f *fakeLister) ListPage(ctx context.Context, q provider.ListQuery) (*provider.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, q)
	if f.err != nil {
		return nil, f.err
	}
	idx := 0
	if q.PageToken != "" {
		idx, _ = strconv.Atoi(q.PageToken)
	}
	p := f.pages[idx]
	return &p, nil
}

// pagesOf splits files into pages of perPage, chained by index tokens.
func pagesOf(perPage int, files ...provider.RemoteFile) []provider.Page {
	var pages []provider.Page
	for start := 0; start < len(files) || start == 0; start += perPage {
		end := min(start+perPage, len(files))
		p := provider.Page{Files: files[start:end]}
		if end < len(files) {
			p.NextPageToken = strconv.Itoa(len(pages) + 1)
		}
		pages = append(pages, p)
		if end == len(files) {
			break
		}
	}
	return pages
}

// fakeExec records every batch it receives.
type fakeExec struct {
	max int

	// failBatch fails the whole call with the given index.
	failBatch map[int]error
	// failFile fails single operations.
	failFile map[string]error
	// dropFile omits results for single operations.
	dropFile map[string]bool
	// after runs once each call has been recorded.
	after func(call int)

	mu      sync.Mutex
	batches [][]provider.Operation
	ctxs    []context.Context
}

func (f *fakeExec) MaxBatchSize() int { return f.max }

func (f *fakeExec) ExecuteBatch(ctx context.Context, ops []provider.Operation) ([]provider.OpResult, error) {
	f.mu.Lock()
	call := len(f.batches)
	f.batches = append(f.batches, append([]provider.Operation(nil), ops...))
	f.ctxs = append(f.ctxs, ctx)
	f.mu.Unlock()

	if f.after != nil {
		defer f.after(call)
	}

	if err := f.failBatch[call]; err != nil {
		return nil, err
	}

	results := make([]provider.OpResult, 0, len(ops))
	for _, op := range ops {
		if f.dropFile[op.FileID] {
			continue
		}
		results = append(results, provider.OpResult{FileID: op.FileID, Err: f.failFile[op.FileID]})
	}
	return results, nil
}

func (f *fakeExec) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func (f *fakeExec) fileIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for _, b := range f.batches {
		for _, op := range b {
			ids = append(ids, op.FileID)
		}
	}
	return ids
}

// fakeOpener serves fixed content per file ID.
type fakeOpener struct {
	content map[string][]byte
	err     error
}

func (f *fakeOpener) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.content[fileID]
	if !ok {
		return io.NopCloser(strings.NewReader("not an image")), nil
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

// fakeRecorder keeps runs in memory.
type fakeRecorder struct {
	mu        sync.Mutex
	begun     []model.RunKind
	batches   []BatchReport
	states    []model.RunState
	summaries []model.RunSummary
	beginErr  error
}

func (f *fakeRecorder) BeginRun(ctx context.Context, kind model.RunKind, providerName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return "", f.beginErr
	}
	f.begun = append(f.begun, kind)
	return "run-" + strconv.Itoa(len(f.begun)), nil
}

func (f *fakeRecorder) RecordBatch(ctx context.Context, runID string, rep BatchReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, rep)
	return nil
}

func (f *fakeRecorder) FinishRun(ctx context.Context, runID string, state model.RunState, summary model.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	f.summaries = append(f.summaries, summary)
	return nil
}

func rec(id, fp string, size int64) model.FileRecord {
	return model.FileRecord{ID: id, Fingerprint: fp, Name: id + ".bin", SizeBytes: size}
}

func remote(id, fp string, size int64) provider.RemoteFile {
	return provider.RemoteFile{ID: id, Fingerprint: fp, Name: id + ".bin", QuotaBytes: size}
}

func recordIDs(records []model.FileRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// dupSets builds n sets of two members each, yielding n extras.
func dupSets(n int) []model.DuplicateSet {
	sets := make([]model.DuplicateSet, n)
	for i := range sets {
		fp := "fp" + strconv.Itoa(i)
		sets[i] = model.DuplicateSet{
			Fingerprint: fp,
			Members: []model.FileRecord{
				rec("keep"+strconv.Itoa(i), fp, 1),
				rec("extra"+strconv.Itoa(i), fp, 1),
			},
		}
	}
	return sets
}
