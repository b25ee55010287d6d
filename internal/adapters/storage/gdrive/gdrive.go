package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"cutline/internal/ports"
)

// Client implements ports.StorageProvider on Google Drive. Uploads use the
// object key as the file name; the returned ObjectKey is the Drive file id.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{Name: in.ObjectKey, MimeType: in.ContentType}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, err
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

// GetSignedURL returns an empty URL; Drive objects are proxied by the API.
func (c *Client) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{URL: "", ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

// Ping checks that the credentials can still reach Drive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.srv.About.Get().Fields("user").Context(ctx).Do()
	return err
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
