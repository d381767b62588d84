package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/h2non/filetype"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/drivetidy/drivetidy/internal/logger"
	"github.com/drivetidy/drivetidy/internal/model"
	"github.com/drivetidy/drivetidy/internal/provider"
)

// ReadCaptureTime decodes an EXIF block from r and returns the raw
// DateTimeOriginal value, falling back to DateTime.
func ReadCaptureTime(r io.Reader) (string, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode exif: %w", err)
	}

	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		if s = strings.TrimRight(s, "\x00 "); s != "" {
			return s, nil
		}
	}
	return "", ErrNoCaptureTime
}

// ProbeCaptureTimes fills in CaptureTime for photos that have none by
// reading their content. Photos that cannot be read are left unchanged.
// It returns a new slice and the number of photos that gained a time.
func ProbeCaptureTimes(ctx context.Context, opener provider.ContentOpener, photos []model.PhotoRecord) ([]model.PhotoRecord, int) {
	out := make([]model.PhotoRecord, len(photos))
	probed := 0

	for i, p := range photos {
		out[i] = p
		if p.CaptureTime != "" {
			continue
		}

		captured, err := probeOne(ctx, opener, p.ID)
		if err != nil {
			logger.Get().Debug().Err(err).Str("id", p.ID).Str("name", p.Name).Msg("exif probe failed")
			continue
		}
		out[i].CaptureTime = captured
		probed++
	}
	return out, probed
}

// errNotImage is returned by probeOne for content whose header is not a
// known image format.
var errNotImage = errors.New("content is not an image")

// sniffLen covers the longest magic number filetype matches on.
const sniffLen = 261

func probeOne(ctx context.Context, opener provider.ContentOpener, fileID string) (string, error) {
	rc, err := opener.OpenContent(ctx, fileID)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	head = head[:n]
	if !filetype.IsImage(head) {
		return "", errNotImage
	}
	return ReadCaptureTime(io.MultiReader(bytes.NewReader(head), rc))
}
