package clipworker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// fakeClock runs AfterFunc callbacks synchronously and in order once
// drain is called, so tests don't depend on wall-clock timing.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []func()
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) *time.Timer {
	c.mu.Lock()
	c.pending = append(c.pending, f)
	c.mu.Unlock()
	return nil
}

// drain runs every scheduled callback, including ones newly scheduled
// by a callback, until none remain.
func (c *fakeClock) drain() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		next()
	}
}

type fakeClipClient struct {
	mu        sync.Mutex
	requestID string
	reqErr    error
	clip      model.Clip
	clipErr   error
}

func (f *fakeClipClient) RequestClip(context.Context, int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requestID, f.reqErr
}

func (f *fakeClipClient) RetrieveClip(context.Context, string) (model.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clip, f.clipErr
}

type fakeClipInserter struct {
	mu    sync.Mutex
	clips []model.Clip
}

func (f *fakeClipInserter) InsertClip(_ context.Context, clip model.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = append(f.clips, clip)
	return nil
}

func anomalyPayload(t *testing.T, broadcasterID, timestampS int64) []byte {
	t.Helper()
	data, err := json.Marshal(model.AnomalyEvent{BroadcasterID: broadcasterID, Timestamp: timestampS})
	require.NoError(t, err)
	return data
}

func TestWorker_FreshAnomalyProducesClipAfterSchedule(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	clock := newFakeClock(now)
	client := &fakeClipClient{requestID: "req-1", clip: model.Clip{ClipID: "clip-1", EmbedURL: "https://e", ThumbnailURL: "https://t"}}
	store := &fakeClipInserter{}

	w := New(Config{FreshnessWindow: 5 * time.Second, RequestDelay: 5 * time.Second, RetrieveDelay: 15 * time.Second}, context.Background(), client, store, nil, zerolog.Nop()).WithClock(clock)

	require.NoError(t, w.HandleAnomalyEvent(context.Background(), anomalyPayload(t, 1, now.Unix())))
	clock.drain()

	require.Len(t, store.clips, 1)
	assert.Equal(t, "clip-1", store.clips[0].ClipID)
	assert.Equal(t, now.Unix(), store.clips[0].Timestamp)
}

func TestWorker_StaleAnomalyDroppedWithoutScheduling(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	clock := newFakeClock(now)
	client := &fakeClipClient{}
	store := &fakeClipInserter{}

	w := New(Config{FreshnessWindow: 5 * time.Second, RequestDelay: 5 * time.Second, RetrieveDelay: 15 * time.Second}, context.Background(), client, store, nil, zerolog.Nop()).WithClock(clock)

	staleTimestamp := now.Unix() - 10
	require.NoError(t, w.HandleAnomalyEvent(context.Background(), anomalyPayload(t, 1, staleTimestamp)))
	clock.drain()

	assert.Empty(t, store.clips)
	assert.Empty(t, clock.pending)
}

func TestWorker_RequestFailureDoesNotScheduleRetrieval(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	clock := newFakeClock(now)
	client := &fakeClipClient{reqErr: errors.New("clip not allowed")}
	store := &fakeClipInserter{}

	w := New(Config{FreshnessWindow: 5 * time.Second, RequestDelay: 5 * time.Second, RetrieveDelay: 15 * time.Second}, context.Background(), client, store, nil, zerolog.Nop()).WithClock(clock)

	require.NoError(t, w.HandleAnomalyEvent(context.Background(), anomalyPayload(t, 1, now.Unix())))
	clock.drain()

	assert.Empty(t, store.clips)
}

func TestWorker_RetrieveFailureIsLoggedNotStored(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	clock := newFakeClock(now)
	client := &fakeClipClient{requestID: "req-1", clipErr: errors.New("clip expired")}
	store := &fakeClipInserter{}

	w := New(Config{FreshnessWindow: 5 * time.Second, RequestDelay: 5 * time.Second, RetrieveDelay: 15 * time.Second}, context.Background(), client, store, nil, zerolog.Nop()).WithClock(clock)

	require.NoError(t, w.HandleAnomalyEvent(context.Background(), anomalyPayload(t, 1, now.Unix())))
	clock.drain()

	assert.Empty(t, store.clips)
}

func TestWorker_PoisonMessageDropsWithoutError(t *testing.T) {
	w := New(Config{FreshnessWindow: 5 * time.Second}, context.Background(), &fakeClipClient{}, &fakeClipInserter{}, nil, zerolog.Nop())
	err := w.HandleAnomalyEvent(context.Background(), []byte("not json"))
	assert.NoError(t, err)
}
