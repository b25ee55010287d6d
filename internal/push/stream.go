// Package push delivers job records to one consumer over a server-sent
// event stream.
//
// A Stream is the dedicated writer task for a single connection: the job
// registry only enqueues records on the connection's subscription, and the
// stream drains that queue onto the network. A slow or stalled consumer
// therefore never holds up notification of other consumers.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"cutline/internal/jobs"
	"cutline/internal/pkg/logger"
)

const (
	// DefaultHeartbeat is the idle interval between keep-alive comments.
	DefaultHeartbeat = 15 * time.Second
	// DefaultWriteTimeout bounds a single event write.
	DefaultWriteTimeout = 10 * time.Second
)

// heartbeatFrame is an SSE comment line; EventSource consumers ignore it.
var heartbeatFrame = []byte(": keep-alive\n\n")

// State is the lifecycle phase of a stream.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome says why a stream ended.
type Outcome string

const (
	OutcomeTerminal     Outcome = "terminal"
	OutcomeDisconnected Outcome = "disconnected"
	OutcomeWriteFailed  Outcome = "write_failed"
	OutcomeOverflow     Outcome = "overflow"
	OutcomeShutdown     Outcome = "shutdown"
)

// Options tunes a Stream. Zero values fall back to the package defaults.
type Options struct {
	Heartbeat    time.Duration
	WriteTimeout time.Duration
	Log          *logger.Logger
}

// Stream writes the records of one subscription to one HTTP response.
type Stream struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	sub  *jobs.Subscription
	opts Options
	log  *logger.Logger

	state   atomic.Int32
	events  atomic.Int64
	release sync.Once
}

// New binds sub to w. The stream owns sub from here on and releases it when
// Serve returns.
func New(w http.ResponseWriter, sub *jobs.Subscription, opts Options) *Stream {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	log := opts.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Stream{
		w:    w,
		rc:   http.NewResponseController(w),
		sub:  sub,
		opts: opts,
		log:  log.WithComponent("push").WithJobID(sub.JobID()),
	}
}

// State returns the current lifecycle phase.
func (s *Stream) State() State { return State(s.state.Load()) }

// Events returns how many records have been written.
func (s *Stream) Events() int64 { return s.events.Load() }

// Serve writes the stream until the job's grace window elapses, ctx is
// canceled by the consumer going away, or a write fails. The subscription is
// released exactly once on return.
func (s *Stream) Serve(ctx context.Context) Outcome {
	defer s.close()

	if err := s.open(); err != nil {
		s.log.Debug("stream open failed", "error", err.Error())
		return OutcomeWriteFailed
	}

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.state.Store(int32(StateClosing))
			return OutcomeDisconnected

		case rec, ok := <-s.sub.Events():
			if !ok {
				s.state.Store(int32(StateClosing))
				return outcomeFor(s.sub.Reason())
			}
			if err := s.writeRecord(rec); err != nil {
				s.state.Store(int32(StateClosing))
				s.log.Debug("event write failed", "error", err.Error())
				return OutcomeWriteFailed
			}
			if rec.Terminal() {
				// Only the grace window remains; keep-alives stop here.
				s.state.Store(int32(StateClosing))
				heartbeat.Stop()
				continue
			}
			if s.State() == StateOpen {
				heartbeat.Reset(s.opts.Heartbeat)
			}

		case <-heartbeat.C:
			if s.State() != StateOpen {
				continue
			}
			if err := s.write(heartbeatFrame); err != nil {
				s.state.Store(int32(StateClosing))
				s.log.Debug("heartbeat write failed", "error", err.Error())
				return OutcomeWriteFailed
			}
		}
	}
}

func (s *Stream) open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	if err := s.deadline(); err != nil {
		return err
	}
	s.w.WriteHeader(http.StatusOK)
	return s.flush()
}

// deadline extends the connection's write deadline, replacing the server-wide
// WriteTimeout for the lifetime of the stream.
func (s *Stream) deadline() error {
	err := s.rc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (s *Stream) writeRecord(rec jobs.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')

	if err := s.write(frame); err != nil {
		return err
	}
	s.events.Add(1)
	return nil
}

func (s *Stream) write(frame []byte) error {
	if err := s.deadline(); err != nil {
		return err
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	return s.flush()
}

func (s *Stream) flush() error {
	return s.rc.Flush()
}

func (s *Stream) close() {
	s.release.Do(func() {
		s.sub.Close()
		s.state.Store(int32(StateClosed))
	})
}

func outcomeFor(reason jobs.CloseReason) Outcome {
	switch reason {
	case jobs.ReasonTerminal:
		return OutcomeTerminal
	case jobs.ReasonOverflow:
		return OutcomeOverflow
	case jobs.ReasonShutdown:
		return OutcomeShutdown
	default:
		return OutcomeDisconnected
	}
}
