package s3

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(Options{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestGetSignedURL(t *testing.T) {
	c, err := New(Options{
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		Bucket:    "cutline",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", c.Provider())

	out, err := c.GetSignedURL(context.Background(), "renders/J1/captions.vtt", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(out.URL)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/cutline/renders/J1/captions.vtt", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), out.ExpiresAt, time.Minute)
}
