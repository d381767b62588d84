// Package rclone provides a backend that drives any rclone remote through
// the rclone binary.
package rclone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/provider"
)

const (
	// DefaultHashType is the rclone hash used as content fingerprint.
	DefaultHashType = "md5"

	// DefaultParallelism bounds concurrent rclone processes within a batch.
	DefaultParallelism = 4

	touchLayout = "2006-01-02T15:04:05"
)

var imageFilters = []string{"--include", "*.{jpg,jpeg,JPG,JPEG}"}

// RunFunc executes rclone with args and returns its standard output.
type RunFunc func(ctx context.Context, args ...string) ([]byte, error)

// Provider implements provider.Backend on top of one rclone remote.
type Provider struct {
	remoteName  string // rclone remote, e.g. "gdrive:"
	configPath  string
	binary      string
	hashType    string
	trashDir    string
	parallelism int
	run         RunFunc
}

// Option configures a Provider.
type Option func(*Provider)

// WithConfigPath points rclone at a specific rclone.conf.
func WithConfigPath(path string) Option {
	return func(p *Provider) { p.configPath = path }
}

// WithBinary overrides the rclone executable.
func WithBinary(binary string) Option {
	return func(p *Provider) {
		if binary != "" {
			p.binary = binary
		}
	}
}

// WithHashType selects the rclone hash used as fingerprint.
func WithHashType(hashType string) Option {
	return func(p *Provider) {
		if hashType != "" {
			p.hashType = strings.ToLower(hashType)
		}
	}
}

// WithTrashDir sets where trashed files are moved. A relative dir is taken
// from the root of the remote; "other:dir" names a different remote.
func WithTrashDir(dir string) Option {
	return func(p *Provider) { p.trashDir = strings.TrimSuffix(dir, "/") }
}

// WithParallelism bounds concurrent rclone processes per batch.
func WithParallelism(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.parallelism = n
		}
	}
}

// WithRunner replaces process execution.
func WithRunner(run RunFunc) Option {
	return func(p *Provider) { p.run = run }
}

// NewProvider creates a provider for remoteName. A missing trailing colon
// is added.
func NewProvider(remoteName string, opts ...Option) *Provider {
	if !strings.Contains(remoteName, ":") {
		remoteName += ":"
	}
	p := &Provider{
		remoteName:  remoteName,
		binary:      "rclone",
		hashType:    DefaultHashType,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.run == nil {
		p.run = p.runRclone
	}
	return p
}

// ID returns the unique identifier for this provider instance.
func (p *Provider) ID() string {
	return "rclone:" + strings.TrimSuffix(p.remoteName, ":")
}

// Type returns the provider type.
func (p *Provider) Type() string {
	return "rclone"
}

// DisplayName returns the human-readable name.
func (p *Provider) DisplayName() string {
	return "rclone " + p.remoteName
}

// Check verifies rclone is installed and the remote is configured.
func (p *Provider) Check(ctx context.Context) error {
	output, err := p.run(ctx, "listremotes")
	if err != nil {
		return fmt.Errorf("failed to list rclone remotes: %w", err)
	}

	remote := p.remoteName[:strings.Index(p.remoteName, ":")+1]
	for _, line := range strings.Fields(string(output)) {
		if line == remote {
			return nil
		}
	}
	return fmt.Errorf("rclone remote '%s' not configured", remote)
}

// MaxBatchSize returns 0; rclone imposes no batch ceiling.
func (p *Provider) MaxBatchSize() int { return 0 }

// CanTrash reports whether a trash directory is configured.
func (p *Provider) CanTrash() bool { return p.trashDir != "" }

type lsEntry struct {
	Path     string            `json:"Path"`
	Name     string            `json:"Name"`
	Size     int64             `json:"Size"`
	MimeType string            `json:"MimeType"`
	ModTime  time.Time         `json:"ModTime"`
	IsDir    bool              `json:"IsDir"`
	Hashes   map[string]string `json:"Hashes"`
}

// ListPage lists the whole remote recursively in a single page. File paths
// serve as IDs.
func (p *Provider) ListPage(ctx context.Context, q provider.ListQuery) (*provider.Page, error) {
	args := []string{"lsjson", "-R", "--files-only", "--hash", "--hash-type", p.hashType}
	if q.Kind == provider.ListImages {
		args = append(args, imageFilters...)
	}
	if exclude := p.trashExclude(); exclude != "" {
		args = append(args, "--exclude", exclude)
	}
	args = append(args, p.remoteName)

	output, err := p.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p.remoteName, err)
	}

	var entries []lsEntry
	if err := json.Unmarshal(output, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	page := &provider.Page{Files: make([]provider.RemoteFile, 0, len(entries))}
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		page.Files = append(page.Files, provider.RemoteFile{
			ID:           e.Path,
			Name:         e.Name,
			MimeType:     e.MimeType,
			Fingerprint:  e.Hashes[p.hashType],
			QuotaBytes:   e.Size,
			ModifiedTime: e.ModTime,
		})
	}
	return page, nil
}

// ExecuteBatch runs one rclone process per operation.
func (p *Provider) ExecuteBatch(ctx context.Context, ops []provider.Operation) ([]provider.OpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]provider.OpResult, len(ops))
	var g errgroup.Group
	g.SetLimit(p.parallelism)

	for i, op := range ops {
		g.Go(func() error {
			results[i] = provider.OpResult{FileID: op.FileID, Err: p.apply(ctx, op)}
			return nil
		})
	}
	_ = g.Wait()

	// A missing binary fails every operation the same way.
	for _, res := range results {
		var execErr *exec.Error
		if errors.As(res.Err, &execErr) {
			return nil, fmt.Errorf("rclone unavailable: %w", res.Err)
		}
	}
	return results, nil
}

func (p *Provider) apply(ctx context.Context, op provider.Operation) error {
	target := p.path(op.FileID)

	var err error
	switch op.Kind {
	case provider.OpTrash:
		// rclone has no portable soft delete; never remove files outright.
		if !p.CanTrash() {
			return fmt.Errorf("%s %s: %w (set rclone.trash_dir)", op.Kind, op.FileID, provider.ErrNoTrash)
		}
		_, err = p.run(ctx, "moveto", target, p.trashPath(op.FileID))
	case provider.OpSetModified:
		_, err = p.run(ctx, "touch", "--no-create", "-t", op.ModifiedTime.UTC().Format(touchLayout), target)
	default:
		return fmt.Errorf("unsupported operation %q", op.Kind)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", op.Kind, op.FileID, err)
	}
	return nil
}

// path joins a listed file path onto the remote.
func (p *Provider) path(fileID string) string {
	if strings.HasSuffix(p.remoteName, ":") || strings.HasSuffix(p.remoteName, "/") {
		return p.remoteName + fileID
	}
	return p.remoteName + "/" + fileID
}

// trashPath keeps a file's path relative to the remote root under the trash
// directory.
func (p *Provider) trashPath(fileID string) string {
	root, sub, _ := strings.Cut(p.remoteName, ":")
	rel := fileID
	if sub = strings.Trim(sub, "/"); sub != "" {
		rel = sub + "/" + fileID
	}
	if strings.Contains(p.trashDir, ":") {
		return p.trashDir + "/" + rel
	}
	return root + ":" + strings.TrimPrefix(p.trashDir, "/") + "/" + rel
}

// trashExclude keeps the trash directory out of listings of the whole remote.
func (p *Provider) trashExclude() string {
	if p.trashDir == "" || strings.Contains(p.trashDir, ":") {
		return ""
	}
	if _, sub, _ := strings.Cut(p.remoteName, ":"); strings.Trim(sub, "/") != "" {
		return ""
	}
	return "/" + strings.TrimPrefix(p.trashDir, "/") + "/**"
}

// OpenContent returns a file's bytes via rclone cat.
func (p *Provider) OpenContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	output, err := p.run(ctx, "cat", p.path(fileID))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileID, err)
	}
	return io.NopCloser(bytes.NewReader(output)), nil
}

// runRclone runs the rclone binary with common flags.
func (p *Provider) runRclone(ctx context.Context, args ...string) ([]byte, error) {
	allArgs := args
	if p.configPath != "" {
		allArgs = append([]string{"--config", p.configPath}, args...)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, allArgs...)
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		logger.Get().Debug().Err(err).Strs("args", args).Str("stderr", msg).Msg("rclone failed")
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return output, nil
}
