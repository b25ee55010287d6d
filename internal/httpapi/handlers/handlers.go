package handlers

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cutline/internal/gateway"
	"cutline/internal/jobs"
	"cutline/internal/models"
	"cutline/internal/pkg/logger"
	"cutline/internal/ports"
	"cutline/internal/push"
)

// Publisher replicates accepted updates to other replicas.
type Publisher interface {
	Publish(ctx context.Context, u jobs.Update) error
}

// Journal records every webhook delivery.
type Journal interface {
	Append(ctx context.Context, e *models.RenderEvent) error
	ListByJob(ctx context.Context, jobID string, limit int) ([]models.RenderEvent, error)
}

// Deps wires the handlers. Only Tracker is required; every other
// collaborator is optional and its feature is disabled when nil.
type Deps struct {
	Tracker  *jobs.Tracker
	Gateway  gateway.Client
	Relay    Publisher
	Journal  Journal
	Storage  ports.StorageProvider
	Pool     *pgxpool.Pool
	RDB      *redis.Client
	Log      *logger.Logger
	Stream   push.Options
	Fallback bool
	Instance string
}

type Handler struct {
	tracker  *jobs.Tracker
	gateway  gateway.Client
	relay    Publisher
	journal  Journal
	sp       ports.StorageProvider
	pool     *pgxpool.Pool
	rdb      *redis.Client
	log      *logger.Logger
	stream   push.Options
	fallback bool
	instance string
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		tracker:  d.Tracker,
		gateway:  d.Gateway,
		relay:    d.Relay,
		journal:  d.Journal,
		sp:       d.Storage,
		pool:     d.Pool,
		rdb:      d.RDB,
		log:      log,
		stream:   d.Stream,
		fallback: d.Fallback,
		instance: d.Instance,
	}
}
