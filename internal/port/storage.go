package port

import (
	"context"
	"io"
)

// ObjectStorage abstracts the receipt image archive. Implementations are
// keyed to a single configured bucket.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expirySeconds int64) (string, error)
}
