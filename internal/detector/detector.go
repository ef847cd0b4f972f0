// Package detector consumes chat events, maintains per-broadcaster
// time-bucket statistics, and publishes anomaly events on surge with a
// cooldown.
package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/bucket"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// commandPattern matches chat text that is a bot command, not organic
// chat, and is excluded from anomaly counting.
var commandPattern = regexp.MustCompile(`^![A-Za-z0-9]+`)

// minBucketsBeforeAnomaly is the warm-up period: a detector needs more
// than this many closed buckets of history before a surge can fire.
const minBucketsBeforeAnomaly = 60

// cooldownSeconds bounds anomaly emission to at most one per window per
// broadcaster.
const cooldownSeconds = 30

// Publisher delivers an anomaly event to the anomaly fan-out.
type Publisher interface {
	PublishAnomaly(ctx context.Context, event model.AnomalyEvent) error
}

type broadcasterState struct {
	buckets      *bucket.TimeBucketList
	lastAnomaly  int64
	lastObserved time.Time
}

// Detector owns all per-broadcaster detector state for one process.
type Detector struct {
	mu         sync.Mutex
	states     map[int64]*broadcasterState
	bucketSize int64
	idleTTL    time.Duration
	publisher  Publisher
	metrics    *metrics.Registry
	logger     zerolog.Logger
}

// New creates a Detector with the given bucket width and idle-eviction
// TTL (0 disables idle eviction; state still resets on a 60-bucket gap).
func New(bucketSizeSeconds int64, idleTTL time.Duration, publisher Publisher, m *metrics.Registry, logger zerolog.Logger) *Detector {
	return &Detector{
		states:     make(map[int64]*broadcasterState),
		bucketSize: bucketSizeSeconds,
		idleTTL:    idleTTL,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
	}
}

func (d *Detector) stateFor(broadcasterID int64) *broadcasterState {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.states[broadcasterID]
	if !ok {
		s = &broadcasterState{buckets: bucket.New(d.bucketSize)}
		d.states[broadcasterID] = s
	}
	return s
}

// HandleChatMessage processes one chat_fanout payload. A poison (invalid
// JSON) payload is dropped and acked (returns nil); a publish failure on
// an anomaly is returned so the caller leaves the message unacked.
func (d *Detector) HandleChatMessage(ctx context.Context, payload []byte) error {
	var msg model.ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		d.logger.Warn().Err(err).Msg("detector: dropping undecodable message")
		return nil
	}

	if isCommand(msg.Message) {
		return nil
	}

	tsS := msg.Timestamp / 1000
	state := d.stateFor(msg.BroadcasterID)

	d.mu.Lock()
	anomalous := state.buckets.AppendAndCheck(tsS)
	size := state.buckets.Size()
	state.lastObserved = time.Now()
	shouldPublish := false
	if size > minBucketsBeforeAnomaly && anomalous {
		if tsS-state.lastAnomaly > cooldownSeconds {
			shouldPublish = true
		}
	}
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.MessagesProcessed.WithLabelValues("detector").Inc()
	}

	if !shouldPublish {
		return nil
	}

	if err := d.publisher.PublishAnomaly(ctx, model.AnomalyEvent{BroadcasterID: msg.BroadcasterID, Timestamp: tsS}); err != nil {
		return fmt.Errorf("detector: publish anomaly: %w", err)
	}

	d.mu.Lock()
	state.lastAnomaly = tsS
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.AnomaliesDetected.WithLabelValues(strconv.FormatInt(msg.BroadcasterID, 10)).Inc()
	}
	return nil
}

func isCommand(message json.RawMessage) bool {
	var text model.ChatText
	if err := json.Unmarshal(message, &text); err != nil {
		return false
	}
	return commandPattern.MatchString(text.Text)
}

// EvictIdle drops state for any broadcaster not observed since
// now-idleTTL, bounding memory between streams beyond the 60-bucket gap
// reset. A zero idleTTL disables this sweep.
func (d *Detector) EvictIdle(now time.Time) {
	if d.idleTTL <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, s := range d.states {
		if now.Sub(s.lastObserved) > d.idleTTL {
			delete(d.states, id)
		}
	}
}
