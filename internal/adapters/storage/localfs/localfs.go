package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cutline/internal/ports"
)

// LocalFS implements ports.StorageProvider on a directory tree.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// resolve maps an object key to a path under root, rejecting keys that
// would escape it.
func (l *LocalFS) resolve(objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object_key is required")
	}
	clean := path.Clean("/" + objectKey)
	if strings.Contains(objectKey, "..") || clean == "/" {
		return "", fmt.Errorf("invalid object_key: %q", objectKey)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.resolve(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	// write to a temp file so readers never see a partial sidecar
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.resolve(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", 0, ports.ErrObjectNotFound
		}
		return nil, "", 0, err
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

// GetSignedURL returns an empty URL: local objects are only reachable
// through the API.
func (l *LocalFS) GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{URL: "", ExpiresAt: time.Now().UTC().Add(expiresIn)}, nil
}

func (l *LocalFS) Ping(ctx context.Context) error {
	st, err := os.Stat(l.root)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", l.root)
	}
	return nil
}
