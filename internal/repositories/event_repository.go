package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"cutline/internal/httpkit"
	"cutline/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS render_events (
	id          BIGSERIAL PRIMARY KEY,
	job_id      TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	progress    INTEGER,
	message     TEXT        NOT NULL DEFAULT '',
	video_url   TEXT        NOT NULL DEFAULT '',
	error       TEXT        NOT NULL DEFAULT '',
	applied     BOOLEAN     NOT NULL,
	origin      TEXT        NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS render_events_job_id_idx ON render_events (job_id, id);
`

// DefaultListLimit caps ListByJob when no limit is given.
const DefaultListLimit = 200

// EventRepository is the append-only ingest journal.
type EventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// EnsureSchema creates the journal table if it is missing.
func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

func (r *EventRepository) Append(ctx context.Context, e *models.RenderEvent) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO render_events (job_id, status, progress, message, video_url, error, applied, origin)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, received_at
	`, e.JobID, e.Status, e.Progress, e.Message, e.VideoURL, e.Error, e.Applied, e.Origin).
		Scan(&e.ID, &e.ReceivedAt)
}

// ListByJob returns a job's deliveries in arrival order. A journal whose
// table was never created reads as empty.
func (r *EventRepository) ListByJob(ctx context.Context, jobID string, limit int) ([]models.RenderEvent, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, job_id, status, progress, message, video_url, error, applied, origin, received_at
		FROM render_events
		WHERE job_id=$1
		ORDER BY id ASC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return []models.RenderEvent{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []models.RenderEvent{}
	for rows.Next() {
		var e models.RenderEvent
		if err := rows.Scan(
			&e.ID,
			&e.JobID,
			&e.Status,
			&e.Progress,
			&e.Message,
			&e.VideoURL,
			&e.Error,
			&e.Applied,
			&e.Origin,
			&e.ReceivedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *EventRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
