// Package gdrive implements the Google Drive v3 backend.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/provider"
)

const (
	// MaxBatchSize is the most sub-requests Drive accepts in one batch.
	MaxBatchSize = 1000

	// DefaultParallelism bounds concurrent sub-requests within a batch.
	DefaultParallelism = 8

	maxPageSize = 1000

	listFields  = "nextPageToken, files(id,name,md5Checksum,webViewLink,quotaBytesUsed,mimeType,modifiedTime,imageMediaMetadata/time)"
	queryAll    = "trashed = false"
	queryImages = "trashed = false and mimeType = 'image/jpeg'"
)

// Backend talks to one Drive account.
type Backend struct {
	svc         *drive.Service
	parallelism int
}

// New creates a Drive backend. Authentication comes from opts, usually a
// token source from ClientOptions.
func New(ctx context.Context, parallelism int, opts ...option.ClientOption) (*Backend, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	return &Backend{
		svc:         svc,
		parallelism: parallelism,
	}, nil
}

func (b *Backend) ID() string          { return "gdrive" }
func (b *Backend) Type() string        { return "gdrive" }
func (b *Backend) DisplayName() string { return "Google Drive" }

// MaxBatchSize returns the Drive batch limit. The ceiling caps how many
// operations are grouped into one batch, not one HTTP request: ExecuteBatch
// sends each operation as its own Files.Update call.
func (b *Backend) MaxBatchSize() int { return MaxBatchSize }

// ListPage fetches one page of non-trashed files.
func (b *Backend) ListPage(ctx context.Context, q provider.ListQuery) (*provider.Page, error) {
	query := queryAll
	if q.Kind == provider.ListImages {
		query = queryImages
	}

	size := q.PageSize
	if size < 1 || size > maxPageSize {
		size = maxPageSize
	}

	call := b.svc.Files.List().
		Q(query).
		PageSize(int64(size)).
		Fields(googleapi.Field(listFields)).
		Context(ctx)
	if q.PageToken != "" {
		call = call.PageToken(q.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	page := &provider.Page{
		Files:         make([]provider.RemoteFile, 0, len(resp.Files)),
		NextPageToken: resp.NextPageToken,
	}
	for _, f := range resp.Files {
		page.Files = append(page.Files, toRemoteFile(f))
	}
	return page, nil
}

func toRemoteFile(f *drive.File) provider.RemoteFile {
	rf := provider.RemoteFile{
		ID:          f.Id,
		Name:        f.Name,
		ViewLink:    f.WebViewLink,
		MimeType:    f.MimeType,
		Fingerprint: f.Md5Checksum,
		QuotaBytes:  f.QuotaBytesUsed,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			rf.ModifiedTime = t
		} else {
			logger.Get().Debug().Err(err).Str("id", f.Id).Msg("unparseable modifiedTime")
		}
	}
	if f.ImageMediaMetadata != nil {
		rf.CaptureTime = f.ImageMediaMetadata.Time
	}
	return rf
}

// ExecuteBatch applies ops as independent sub-requests, at most
// parallelism at a time. Sub-request failures are reported per operation.
// The batch fails as a whole only when it could not start or when every
// sub-request failed to reach the service.
func (b *Backend) ExecuteBatch(ctx context.Context, ops []provider.Operation) ([]provider.OpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]provider.OpResult, len(ops))
	var g errgroup.Group
	g.SetLimit(b.parallelism)

	for i, op := range ops {
		g.Go(func() error {
			results[i] = provider.OpResult{FileID: op.FileID, Err: b.apply(ctx, op)}
			return nil
		})
	}
	_ = g.Wait()

	if err := allTransport(results); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Backend) apply(ctx context.Context, op provider.Operation) error {
	var patch *drive.File
	switch op.Kind {
	case provider.OpTrash:
		patch = &drive.File{Trashed: true}
	case provider.OpSetModified:
		patch = &drive.File{ModifiedTime: op.ModifiedTime.UTC().Format(time.RFC3339)}
	default:
		return fmt.Errorf("unsupported operation %q", op.Kind)
	}

	_, err := b.svc.Files.Update(op.FileID, patch).Fields("id").Context(ctx).Do()
	if err != nil {
		return describe(op, err)
	}
	return nil
}

func describe(op provider.Operation, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("%s %s: http %d: %w", op.Kind, op.FileID, gerr.Code, err)
	}
	return fmt.Errorf("%s %s: %w", op.Kind, op.FileID, err)
}

// allTransport returns the first error when no sub-request got an HTTP
// response at all.
func allTransport(results []provider.OpResult) error {
	if len(results) == 0 {
		return nil
	}
	var first error
	for _, r := range results {
		var uerr *url.Error
		if r.Err == nil || !errors.As(r.Err, &uerr) {
			return nil
		}
		if first == nil {
			first = r.Err
		}
	}
	return fmt.Errorf("batch could not reach drive: %w", first)
}

// OpenContent streams a file's bytes.
func (b *Backend) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := b.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", fileID, err)
	}
	return resp.Body, nil
}
