// Package model defines the wire and storage types shared across the
// pipeline: chat messages, clips, the broadcaster-fanout tuple, and the
// anomaly event. Types here are immutable once constructed and are safe to
// pass across goroutines and the message bus.
package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChatMessage is the normalized event published by the listener and
// consumed by the ingestion and anomaly-detection stages. Message is kept
// as a raw JSON payload: its shape (room, user, text) is opaque to
// analytics per spec.
type ChatMessage struct {
	BroadcasterID int64           `json:"broadcaster_id"`
	Timestamp     int64           `json:"timestamp"` // ms since epoch
	MessageID     uuid.UUID       `json:"message_id"`
	Message       json.RawMessage `json:"message"`
}

// YearMonth returns the 6-digit YYYYMM the message's timestamp falls in,
// computed in UTC. This must always match the value stored alongside the
// row in the wide-column partition key.
func (c ChatMessage) YearMonth() int {
	return YearMonth(c.Timestamp)
}

// YearMonth derives the 6-digit YYYYMM partition component from a
// millisecond timestamp, interpreted in UTC.
func YearMonth(timestampMs int64) int {
	t := time.UnixMilli(timestampMs).UTC()
	return t.Year()*100 + int(t.Month())
}

// NextYearMonth advances a YYYYMM value by one month, rolling December
// into January of the following year.
func NextYearMonth(yearMonth int) int {
	year := yearMonth / 100
	month := yearMonth % 100
	month++
	if month > 12 {
		month = 1
		year++
	}
	return year*100 + month
}

// ChatText is the subset of the opaque message payload analytics cares
// about: whether it's an organic message or a bot command.
type ChatText struct {
	Text string `json:"text"`
}

// Clip is a platform-captured short video tied to an anomaly moment.
type Clip struct {
	ClipID      string `json:"clip_id"`
	Timestamp   int64  `json:"timestamp"` // seconds since epoch
	EmbedURL    string `json:"embed_url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// BroadcasterEvent is the tuple published on the broadcaster fanout:
// a currently-live streamer and its rank in the platform's online listing.
type BroadcasterEvent struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Rank  int    `json:"rank"`
}

// MarshalJSON encodes BroadcasterEvent as the positional
// [id, login, rank] tuple this pipeline's wire format uses.
func (b BroadcasterEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]interface{}{b.ID, b.Login, b.Rank})
}

// UnmarshalJSON decodes the positional tuple form.
func (b *BroadcasterEvent) UnmarshalJSON(data []byte) error {
	var tuple [3]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("broadcaster event: %w", err)
	}
	if err := json.Unmarshal(tuple[0], &b.ID); err != nil {
		return fmt.Errorf("broadcaster event id: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &b.Login); err != nil {
		return fmt.Errorf("broadcaster event login: %w", err)
	}
	if err := json.Unmarshal(tuple[2], &b.Rank); err != nil {
		return fmt.Errorf("broadcaster event rank: %w", err)
	}
	return nil
}

// AnomalyEvent is published by the detector and consumed by the clip
// creation worker.
type AnomalyEvent struct {
	BroadcasterID int64 `json:"broadcaster_id"`
	Timestamp     int64 `json:"timestamp"` // seconds since epoch
}
