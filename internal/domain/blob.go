package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to blob storage. The snapshot publisher uses it
// to keep a copy of the latest snapshot at a well-known object key.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
