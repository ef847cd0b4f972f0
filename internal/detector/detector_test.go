package detector

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []model.AnomalyEvent
}

func (f *fakePublisher) PublishAnomaly(_ context.Context, event model.AnomalyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func chatPayload(t *testing.T, broadcasterID, timestampMs int64, text string) []byte {
	t.Helper()
	payload, err := json.Marshal(model.ChatText{Text: text})
	require.NoError(t, err)
	msg := model.ChatMessage{
		BroadcasterID: broadcasterID,
		Timestamp:     timestampMs,
		MessageID:     uuid.New(),
		Message:       payload,
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestDetector_AnomalyAndCooldown(t *testing.T) {
	pub := &fakePublisher{}
	d := New(5, 0, pub, nil, zerolog.Nop())

	// Prime 61 quiet buckets (0..60, bucket width 5s) alternating counts 2
	// and 1, so the running deviation is non-zero and closing a quiet
	// bucket does not itself exceed 5σ.
	for i := 0; i < 61; i++ {
		ts := int64(i) * 5 * 1000
		require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, ts, "hello")))
		if i%2 == 0 {
			require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, ts, "hello")))
		}
	}

	// Close the quiet buckets by advancing into bucket 61, then flood it.
	base := int64(61) * 5 * 1000
	for i := 0; i < 200; i++ {
		require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, base, "hello")))
	}
	// Advance to the next bucket to close bucket 61.
	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, base+5000, "hello")))

	assert.Equal(t, 1, pub.count())

	// Flooding the very next bucket within the 30s cooldown suppresses.
	for i := 0; i < 200; i++ {
		require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, base+5000, "hello")))
	}
	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, base+10000, "hello")))
	assert.Equal(t, 1, pub.count())
}

func TestDetector_CommandMessagesDoNotAffectState(t *testing.T) {
	pub := &fakePublisher{}
	d := New(5, 0, pub, nil, zerolog.Nop())

	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, 0, "hello")))
	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, 5000, "hello")))
	sizeBefore := d.stateFor(1).buckets.Size()
	countBefore := d.stateFor(1).buckets.LastClosedBucketCount()

	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, 10000, "!so someone")))
	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 1, 10000, "!so someone")))

	assert.Equal(t, sizeBefore, d.stateFor(1).buckets.Size())
	assert.Equal(t, countBefore, d.stateFor(1).buckets.LastClosedBucketCount())
}

func TestDetector_PoisonMessageDropsWithoutError(t *testing.T) {
	d := New(5, 0, &fakePublisher{}, nil, zerolog.Nop())
	err := d.HandleChatMessage(context.Background(), []byte("not json"))
	assert.NoError(t, err)
}

func TestDetector_EvictIdle(t *testing.T) {
	d := New(5, time.Millisecond, &fakePublisher{}, nil, zerolog.Nop())
	require.NoError(t, d.HandleChatMessage(context.Background(), chatPayload(t, 9, 1000, "hi")))

	time.Sleep(5 * time.Millisecond)
	d.EvictIdle(time.Now())

	d.mu.Lock()
	_, ok := d.states[9]
	d.mu.Unlock()
	assert.False(t, ok)
}
