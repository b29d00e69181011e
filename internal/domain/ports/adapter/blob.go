package adapter

import (
	"context"
	"time"
)

// BlobStore is the object storage holding uploads and rendered previews.
type BlobStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	// SignedRangeURL is a signed reference restricted to a page range.
	SignedRangeURL(ctx context.Context, path string, pageStart, pageEnd int, ttl time.Duration) (string, error)
}
