package listener

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
	"github.com/janovak/twitch-chat-ingestor/internal/platform"
)

type fakeRateLimiter struct {
	mu      sync.Mutex
	grant   bool
	err     error
	calls   int
}

func (f *fakeRateLimiter) ConsumeToken(int64, int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.grant, f.err
}

func (f *fakeRateLimiter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []model.ChatMessage
}

func (f *fakePublisher) PublishChatMessage(_ context.Context, msg model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func broadcasterPayload(t *testing.T, ev model.BroadcasterEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return data
}

func TestListener_AdmitsUnderTopNAndJoinsRoom(t *testing.T) {
	session := platform.NewFakeChatSession()
	limiter := &fakeRateLimiter{grant: true}
	pub := &fakePublisher{}
	cache := NewTTLCache(time.Hour)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Minute, RetryTimeout: time.Second}, session, limiter, pub, cache, nil, zerolog.Nop())

	ev := model.BroadcasterEvent{ID: 1, Login: "alice", Rank: 3}
	require.NoError(t, l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev)))

	assert.Equal(t, []string{"alice"}, session.Joined)
	l.mu.Lock()
	_, online := l.onlineStreamers["alice"]
	l.mu.Unlock()
	assert.True(t, online)
}

func TestListener_RankAtOrAboveTopNIsSkipped(t *testing.T) {
	session := platform.NewFakeChatSession()
	limiter := &fakeRateLimiter{grant: true}
	cache := NewTTLCache(time.Hour)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Minute, RetryTimeout: time.Second}, session, limiter, &fakePublisher{}, cache, nil, zerolog.Nop())

	ev := model.BroadcasterEvent{ID: 2, Login: "bob", Rank: 10}
	require.NoError(t, l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev)))

	assert.Empty(t, session.Joined)
	assert.Equal(t, 0, limiter.callCount())
}

func TestListener_AlreadyOnlineRefreshesCacheWithoutRejoining(t *testing.T) {
	session := platform.NewFakeChatSession()
	limiter := &fakeRateLimiter{grant: true}
	cache := NewTTLCache(time.Hour)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Minute, RetryTimeout: time.Second}, session, limiter, &fakePublisher{}, cache, nil, zerolog.Nop())

	ev := model.BroadcasterEvent{ID: 3, Login: "carol", Rank: 1}
	require.NoError(t, l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev)))
	require.NoError(t, l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev)))

	assert.Equal(t, []string{"carol"}, session.Joined)
	assert.Equal(t, 1, limiter.callCount())
}

func TestListener_RateLimiterTimeoutSkipsWithoutJoining(t *testing.T) {
	session := platform.NewFakeChatSession()
	limiter := &fakeRateLimiter{grant: false}
	cache := NewTTLCache(time.Hour)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Minute, RetryTimeout: 10 * time.Millisecond}, session, limiter, &fakePublisher{}, cache, nil, zerolog.Nop())

	ev := model.BroadcasterEvent{ID: 4, Login: "dave", Rank: 0}
	start := time.Now()
	require.NoError(t, l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev)))
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Empty(t, session.Joined)
	l.mu.Lock()
	_, online := l.onlineStreamers["dave"]
	l.mu.Unlock()
	assert.False(t, online)
}

func TestListener_RateLimiterErrorPropagates(t *testing.T) {
	session := platform.NewFakeChatSession()
	limiter := &fakeRateLimiter{err: errors.New("rpc unavailable")}
	cache := NewTTLCache(time.Hour)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Minute, RetryTimeout: time.Second}, session, limiter, &fakePublisher{}, cache, nil, zerolog.Nop())

	ev := model.BroadcasterEvent{ID: 5, Login: "erin", Rank: 0}
	err := l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev))
	assert.Error(t, err)
}

func TestListener_EvictionLoopLeavesRoomAndClearsOnlineSet(t *testing.T) {
	session := platform.NewFakeChatSession()
	limiter := &fakeRateLimiter{grant: true}
	cache := NewTTLCache(time.Millisecond)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Millisecond, RetryTimeout: time.Second}, session, limiter, &fakePublisher{}, cache, nil, zerolog.Nop())

	ev := model.BroadcasterEvent{ID: 6, Login: "frank", Rank: 0}
	require.NoError(t, l.HandleBroadcasterEvent(context.Background(), broadcasterPayload(t, ev)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.RunEvictionLoop(ctx)

	require.Eventually(t, func() bool {
		l.mu.Lock()
		_, online := l.onlineStreamers["frank"]
		l.mu.Unlock()
		return !online
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, session.Left, "frank")
}

func TestListener_MessageLoopPublishesValidatedMessages(t *testing.T) {
	session := platform.NewFakeChatSession()
	pub := &fakePublisher{}
	cache := NewTTLCache(time.Hour)
	defer cache.Close()

	l := New(Config{TopN: 10, CacheTTL: time.Minute, RetryTimeout: time.Second}, session, &fakeRateLimiter{grant: true}, pub, cache, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.RunMessageLoop(ctx)

	session.Feed <- platform.RawChatMessage{ID: "bad-id", BroadcasterID: 1, Timestamp: 1, Message: []byte(`{}`)}
	session.Feed <- platform.RawChatMessage{ID: "9b1f8b2e-df14-4d7c-8f9a-2a1f3c8e4b10", BroadcasterID: 1, Timestamp: 1706745600000, Message: []byte(`{"text":"hi"}`)}

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)
}
