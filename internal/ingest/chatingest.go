// Package ingest implements the two write consumers downstream of the
// chat and broadcaster fan-outs: chat persistence and streamer registry
// population. Each chat message is written with its own InsertChats
// call; messages are not batched across deliveries.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// ChatInserter persists a slice of chat messages; ChatIngestWorker
// passes one message per call.
type ChatInserter interface {
	InsertChats(ctx context.Context, rows []model.ChatMessage) error
}

// ChatIngestWorker consumes the chat fan-out and writes each message
// through to storage.
type ChatIngestWorker struct {
	store   ChatInserter
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewChatIngestWorker creates a ChatIngestWorker. m may be nil.
func NewChatIngestWorker(store ChatInserter, m *metrics.Registry, logger zerolog.Logger) *ChatIngestWorker {
	return &ChatIngestWorker{store: store, metrics: m, logger: logger}
}

// HandleChatMessage decodes and persists one chat_fanout payload. A
// decode failure drops the message with no error (poison-pill
// avoidance); a storage failure is returned so the caller leaves the
// message unacked for redelivery.
func (w *ChatIngestWorker) HandleChatMessage(ctx context.Context, payload []byte) error {
	var msg model.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		w.logger.Warn().Err(err).Msg("ingest: dropping undecodable chat message")
		if w.metrics != nil {
			w.metrics.MessagesDropped.WithLabelValues("poison").Inc()
		}
		return nil
	}

	if err := w.store.InsertChats(ctx, []model.ChatMessage{msg}); err != nil {
		return fmt.Errorf("ingest: insert chat: %w", err)
	}

	if w.metrics != nil {
		w.metrics.MessagesProcessed.WithLabelValues("chatingest").Inc()
		w.metrics.ChatRowsWritten.Inc()
	}
	return nil
}
