package s3

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cutline/internal/ports"
)

type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client implements ports.StorageProvider on an S3-compatible bucket.
type Client struct {
	mc     *minio.Client
	bucket string
}

func New(opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return &Client{mc: mc, bucket: opts.Bucket}, nil
}

func (c *Client) Provider() string { return "s3" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}
	size := in.Size
	if size <= 0 {
		size = -1
	}
	info, err := c.mc.PutObject(ctx, c.bucket, in.ObjectKey, in.Reader, size, minio.PutObjectOptions{
		ContentType: in.ContentType,
	})
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("s3 upload failed: %w", err)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: info.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", 0, err
	}
	// GetObject is lazy; Stat surfaces a missing key.
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, err
	}
	return obj, st.ContentType, st.Size, nil
}

// GetSignedURL presigns a GET for objectKey.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, objectKey, expiresIn, nil)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	return ports.SignedURLOutput{URL: u.String(), ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

// Ping checks the bucket exists.
func (c *Client) Ping(ctx context.Context) error {
	ok, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}
