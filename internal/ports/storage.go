package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound is returned by GetObject when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is what GetObject expects later. localfs and s3 echo the
	// input key; gdrive returns the Drive file id.
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	// URL is empty when the provider cannot sign; callers then serve the
	// object through the API.
	URL       string
	ExpiresAt time.Time
}

// StorageProvider stores caption sidecars for render jobs.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
	Ping(ctx context.Context) error
}
