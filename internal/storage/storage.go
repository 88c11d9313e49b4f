// Package storage persists uploaded recipe and profile images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxImageBytes caps a single upload.
const MaxImageBytes = 5 << 20

var ErrUnsupportedType = errors.New("unsupported image type")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore saves an image and returns the URL clients should use to load it.
type ImageStore interface {
	Save(ctx context.Context, contentType string, r io.Reader) (string, error)
}

// objectKey builds a collision-free key partitioned by month.
func objectKey(contentType string, now time.Time) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return path.Join("images", now.Format("2006/01"), uuid.NewString()+ext), nil
}
