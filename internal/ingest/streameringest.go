package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// StreamerObserver records that a broadcaster id has been seen live,
// bloom-filter-gated so repeat ids skip the relational write.
type StreamerObserver interface {
	Observe(ctx context.Context, broadcasterID int64) error
}

// StreamerIngestWorker consumes the broadcaster fan-out and populates
// the streamer registry.
type StreamerIngestWorker struct {
	registry StreamerObserver
	metrics  *metrics.Registry
	logger   zerolog.Logger
}

// NewStreamerIngestWorker creates a StreamerIngestWorker. m may be nil.
func NewStreamerIngestWorker(registry StreamerObserver, m *metrics.Registry, logger zerolog.Logger) *StreamerIngestWorker {
	return &StreamerIngestWorker{registry: registry, metrics: m, logger: logger}
}

// HandleBroadcasterEvent decodes one broadcaster_fanout payload and
// records the broadcaster id in the registry.
func (w *StreamerIngestWorker) HandleBroadcasterEvent(ctx context.Context, payload []byte) error {
	var ev model.BroadcasterEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		w.logger.Warn().Err(err).Msg("ingest: dropping undecodable broadcaster event")
		if w.metrics != nil {
			w.metrics.MessagesDropped.WithLabelValues("poison").Inc()
		}
		return nil
	}

	if err := w.registry.Observe(ctx, ev.ID); err != nil {
		return fmt.Errorf("ingest: observe streamer: %w", err)
	}

	if w.metrics != nil {
		w.metrics.MessagesProcessed.WithLabelValues("streameringest").Inc()
	}
	return nil
}
