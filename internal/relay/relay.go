// Package relay replicates accepted status updates between API replicas over
// Redis pub/sub, so a consumer streaming from one replica sees webhooks that
// landed on another.
package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"cutline/internal/jobs"
	"cutline/internal/pkg/errors"
	"cutline/internal/pkg/logger"
)

// Ingester applies a replicated update locally.
type Ingester interface {
	Ingest(u jobs.Update) (jobs.Result, error)
}

// Envelope is the pub/sub message body.
type Envelope struct {
	Origin string      `json:"origin"`
	Update jobs.Update `json:"update"`
	SentAt time.Time   `json:"sentAt"`
}

type Relay struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *logger.Logger
}

func New(rdb *redis.Client, channel, origin string, log *logger.Logger) *Relay {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Relay{
		rdb:     rdb,
		channel: channel,
		origin:  origin,
		log:     log.WithComponent("relay"),
	}
}

// Publish announces an update this replica accepted.
func (r *Relay) Publish(ctx context.Context, u jobs.Update) error {
	payload, err := encode(Envelope{Origin: r.origin, Update: u, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "relay.publish", "publish to redis failed").
			WithField("channel", r.channel)
	}
	return nil
}

// Run applies updates published by other replicas until ctx is done.
func (r *Relay) Run(ctx context.Context, dst Ingester) error {
	ps := r.rdb.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "relay.subscribe", "subscribe to redis failed").
			WithField("channel", r.channel)
	}
	r.log.Info("relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.apply(dst, msg.Payload)
		}
	}
}

func (r *Relay) apply(dst Ingester, payload string) bool {
	env, err := decode(payload)
	if err != nil {
		r.log.Warn("dropping malformed relay message", "error", err.Error())
		return false
	}
	if env.Origin == r.origin {
		return false
	}

	res, err := dst.Ingest(env.Update)
	if err != nil {
		r.log.WithJobID(env.Update.JobID).Warn("relayed update rejected", "origin", env.Origin, "error", err.Error())
		return false
	}
	r.log.WithJobID(env.Update.JobID).Debug("relayed update applied",
		"origin", env.Origin,
		"applied", res.Applied,
		"lag_ms", time.Since(env.SentAt).Milliseconds(),
	)
	return res.Applied
}

func encode(env Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", errors.Wrap(err, "relay.encode", "encode envelope")
	}
	return string(b), nil
}

func decode(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, err
	}
	if env.Origin == "" {
		return Envelope{}, errors.ValidationField("origin", "relay envelope has no origin")
	}
	return env, nil
}
