// Package clipworker implements the clip-creation worker: for each
// fresh anomaly it defers a clip request, then a clip retrieval, and
// stores the result keyed by the anomaly's original timestamp.
package clipworker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// ClipClient requests and retrieves a platform clip.
type ClipClient interface {
	RequestClip(ctx context.Context, broadcasterID int64) (requestID string, err error)
	RetrieveClip(ctx context.Context, requestID string) (model.Clip, error)
}

// ClipInserter stores a completed clip row keyed by its anomaly
// timestamp.
type ClipInserter interface {
	InsertClip(ctx context.Context, clip model.Clip) error
}

// Clock abstracts the passage of time so tests can run the deferred
// schedule without waiting on it.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *time.Timer
}

type realClock struct{}

func (realClock) Now() time.Time                            { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) *time.Timer { return time.AfterFunc(d, f) }

// Config tunes the freshness window and the deferred-task delays.
type Config struct {
	FreshnessWindow time.Duration // default 5s: drop anomalies older than this
	RequestDelay    time.Duration // default 5s: delay before requesting the clip
	RetrieveDelay   time.Duration // default 15s after the request: delay before retrieval
}

// Worker is the clip-creation worker.
type Worker struct {
	cfg     Config
	client  ClipClient
	store   ClipInserter
	clock   Clock
	logger  zerolog.Logger
	baseCtx context.Context
	metrics *metrics.Registry
}

// New creates a Worker. baseCtx is used for the deferred request/
// retrieve calls, which run outside the lifetime of the single
// HandleAnomalyEvent call that schedules them. m may be nil.
func New(cfg Config, baseCtx context.Context, client ClipClient, store ClipInserter, m *metrics.Registry, logger zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, client: client, store: store, clock: realClock{}, logger: logger, baseCtx: baseCtx, metrics: m}
}

// WithClock overrides the Worker's clock, for deterministic tests.
func (w *Worker) WithClock(clock Clock) *Worker {
	w.clock = clock
	return w
}

// HandleAnomalyEvent processes one anomaly fan-out payload: drops it
// if stale, otherwise schedules the deferred request/retrieve and
// returns immediately so the caller can ack regardless of how the
// clip eventually turns out.
func (w *Worker) HandleAnomalyEvent(ctx context.Context, payload []byte) error {
	var event model.AnomalyEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.logger.Warn().Err(err).Msg("clipworker: dropping undecodable anomaly event")
		return nil
	}

	now := w.clock.Now().Unix()
	if now-event.Timestamp > int64(w.cfg.FreshnessWindow.Seconds()) {
		w.logger.Info().Int64("broadcaster_id", event.BroadcasterID).Int64("timestamp", event.Timestamp).Msg("clipworker: anomaly too stale to clip, dropping")
		return nil
	}

	w.clock.AfterFunc(w.cfg.RequestDelay, func() {
		w.requestAndSchedule(event)
	})
	return nil
}

func (w *Worker) requestAndSchedule(event model.AnomalyEvent) {
	requestID, err := w.client.RequestClip(w.baseCtx, event.BroadcasterID)
	if err != nil {
		w.logger.Error().Err(err).Int64("broadcaster_id", event.BroadcasterID).Msg("clipworker: clip request failed")
		if w.metrics != nil {
			w.metrics.ClipCreationErrors.Inc()
		}
		return
	}

	w.clock.AfterFunc(w.cfg.RetrieveDelay, func() {
		w.retrieveAndStore(event, requestID)
	})
}

func (w *Worker) retrieveAndStore(event model.AnomalyEvent, requestID string) {
	clip, err := w.client.RetrieveClip(w.baseCtx, requestID)
	if err != nil {
		w.logger.Error().Err(err).Str("request_id", requestID).Msg("clipworker: clip retrieval failed")
		if w.metrics != nil {
			w.metrics.ClipCreationErrors.Inc()
		}
		return
	}

	clip.Timestamp = event.Timestamp
	if err := w.store.InsertClip(w.baseCtx, clip); err != nil {
		w.logger.Error().Err(fmt.Errorf("clipworker: insert clip: %w", err)).Msg("clipworker: storing clip failed")
		if w.metrics != nil {
			w.metrics.ClipCreationErrors.Inc()
		}
		return
	}

	if w.metrics != nil {
		w.metrics.ClipsCreated.Inc()
	}
}
