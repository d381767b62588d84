// Package core provides the duplicate detection and batch remediation engine.
package core

import (
	"context"
	"fmt"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// DefaultPageSize is used when a Fetcher has no page size set.
const DefaultPageSize = 100

// Fetcher paginates a remote listing into in-memory records.
// It always reads the live listing; nothing is cached between runs.
type Fetcher struct {
	lister   provider.Lister
	pageSize int

	// OnSkip, when set, receives every listed file that carries no
	// content fingerprint. Such files are dropped either way.
	OnSkip func(f provider.RemoteFile)

	// OnPage, when set, receives the running total after each page.
	OnPage func(fetched int)
}

// NewFetcher creates a fetcher over lister.
func NewFetcher(lister provider.Lister, pageSize int) *Fetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Fetcher{
		lister:   lister,
		pageSize: pageSize,
	}
}

// FetchFiles returns every non-trashed file that has a content fingerprint.
func (f *Fetcher) FetchFiles(ctx context.Context) ([]model.FileRecord, error) {
	var records []model.FileRecord
	ids := make(map[string]bool)

	err := f.paginate(ctx, provider.ListAll, func(rf provider.RemoteFile) {
		if rf.Fingerprint == "" {
			if f.OnSkip != nil {
				f.OnSkip(rf)
			}
			return
		}
		// A file listed twice must not end up as its own duplicate.
		if ids[rf.ID] {
			logger.Get().Debug().Str("id", rf.ID).Msg("file listed twice, keeping first")
			return
		}
		ids[rf.ID] = true
		records = append(records, model.FileRecord{
			ID:          rf.ID,
			Fingerprint: rf.Fingerprint,
			Name:        rf.Name,
			ViewLink:    rf.ViewLink,
			SizeBytes:   rf.QuotaBytes,
		})
	}, func() int { return len(records) })
	if err != nil {
		return nil, err
	}

	return records, nil
}

// FetchPhotos returns every non-trashed image with its timestamps.
func (f *Fetcher) FetchPhotos(ctx context.Context) ([]model.PhotoRecord, error) {
	var photos []model.PhotoRecord

	err := f.paginate(ctx, provider.ListImages, func(rf provider.RemoteFile) {
		photos = append(photos, model.PhotoRecord{
			ID:           rf.ID,
			Name:         rf.Name,
			ViewLink:     rf.ViewLink,
			CaptureTime:  rf.CaptureTime,
			ModifiedTime: rf.ModifiedTime,
		})
	}, func() int { return len(photos) })
	if err != nil {
		return nil, err
	}

	return photos, nil
}

func (f *Fetcher) paginate(ctx context.Context, kind provider.ListKind, visit func(provider.RemoteFile), count func() int) error {
	token := ""
	seen := make(map[string]bool)

	for page := 1; ; page++ {
		resp, err := f.lister.ListPage(ctx, provider.ListQuery{
			Kind:      kind,
			PageToken: token,
			PageSize:  f.pageSize,
		})
		if err != nil {
			return fmt.Errorf("failed to list page %d: %w", page, err)
		}

		for _, rf := range resp.Files {
			visit(rf)
		}

		logger.Get().Debug().Int("page", page).Int("fetched", count()).Msg("fetched listing page")
		if f.OnPage != nil {
			f.OnPage(count())
		}

		if resp.NextPageToken == "" {
			return nil
		}
		if seen[resp.NextPageToken] {
			return fmt.Errorf("listing repeated page token on page %d", page)
		}
		seen[resp.NextPageToken] = true
		token = resp.NextPageToken
	}
}
