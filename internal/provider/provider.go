// Package provider defines the storage backend interfaces and types.
// Backends are plugins; no backend-specific logic lives in core.
package provider

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrUnknownBackend is returned when a backend name has no registered factory.
var ErrUnknownBackend = errors.New("unknown backend")

// ErrNoTrash is returned when a backend cannot move files to a trash.
var ErrNoTrash = errors.New("backend cannot move files to a trash")

// ListKind selects which files a listing returns.
type ListKind int

const (
	// ListAll lists every non-trashed file.
	ListAll ListKind = iota
	// ListImages lists non-trashed JPEG images with media metadata.
	ListImages
)

// ListQuery requests one page of a remote listing.
type ListQuery struct {
	Kind      ListKind
	PageToken string
	PageSize  int
}

// RemoteFile is one entry of a listing page, exactly as the backend reports it.
// Fingerprint is empty when the backend has no content hash for the file.
type RemoteFile struct {
	ID           string
	Name         string
	ViewLink     string
	MimeType     string
	Fingerprint  string
	QuotaBytes   int64
	ModifiedTime time.Time
	CaptureTime  string // EXIF capture time, images only
}

// Page is one page of listing results.
// An empty NextPageToken marks the last page.
type Page struct {
	Files         []RemoteFile
	NextPageToken string
}

// OpKind is the kind of a batched remote operation.
type OpKind string

const (
	OpTrash       OpKind = "trash"
	OpSetModified OpKind = "set_modified"
)

// Operation is one sub-operation of a batch.
type Operation struct {
	Kind         OpKind
	FileID       string
	ModifiedTime time.Time // OpSetModified only
}

// OpResult reports the outcome of one Operation.
// Err is nil on success.
type OpResult struct {
	FileID string
	Err    error
}

// Lister pages through a remote listing.
type Lister interface {
	ListPage(ctx context.Context, q ListQuery) (*Page, error)
}

// BatchExecutor runs a batch of independent operations. A batch is the unit
// of grouping and failure accounting; a backend may send it as one request or
// as several. It returns one OpResult per operation, in input order. A non-nil
// error means the batch as a whole could not reach the service.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, ops []Operation) ([]OpResult, error)

	// MaxBatchSize returns the backend's hard ceiling, or 0 when unbounded.
	MaxBatchSize() int
}

// ContentOpener is implemented by backends that can stream file content.
type ContentOpener interface {
	OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// TrashChecker is implemented by backends whose trash support depends on
// their configuration.
type TrashChecker interface {
	CanTrash() bool
}

// Backend is a configured storage account.
type Backend interface {
	Lister
	BatchExecutor

	// ID returns unique identifier for this backend instance.
	ID() string

	// Type returns backend type (gdrive, rclone).
	Type() string

	// DisplayName returns human-readable name.
	DisplayName() string
}
