package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/models"
)

func newTestRepository(t *testing.T) *EventRepository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := pool.Ping(context.Background()); err != nil {
		t.Skipf("database unavailable: %v", err)
	}

	repo := NewEventRepository(pool)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	return repo
}

func TestEventRepositoryAppendAndList(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	jobID := "test-" + uuid.NewString()
	p := 40

	events := []*models.RenderEvent{
		{JobID: jobID, Status: "processing", Progress: &p, Applied: true, Origin: "api-a"},
		{JobID: jobID, Status: "completed", VideoURL: "https://x/y.mp4", Applied: true, Origin: "api-a"},
		{JobID: jobID, Status: "processing", Applied: false, Origin: "api-b"},
	}
	for _, e := range events {
		require.NoError(t, repo.Append(ctx, e))
		assert.NotZero(t, e.ID)
		assert.False(t, e.ReceivedAt.IsZero())
	}

	got, err := repo.ListByJob(ctx, jobID, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "processing", got[0].Status)
	require.NotNil(t, got[0].Progress)
	assert.Equal(t, 40, *got[0].Progress)
	assert.Equal(t, "https://x/y.mp4", got[1].VideoURL)
	assert.False(t, got[2].Applied)
	assert.Nil(t, got[2].Progress)

	limited, err := repo.ListByJob(ctx, jobID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestEventRepositoryUnknownJob(t *testing.T) {
	repo := newTestRepository(t)

	got, err := repo.ListByJob(context.Background(), "missing-"+uuid.NewString(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, repo.Ping(context.Background()))
}
