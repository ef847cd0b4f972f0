package platform

import (
	"context"
	"strconv"
	"sync"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// FakeChatSession is an in-memory ChatSession for tests: JoinRoom/LeaveRoom
// record the calls, and test code can push RawChatMessages onto Feed.
type FakeChatSession struct {
	mu      sync.Mutex
	Joined  []string
	Left    []string
	Feed    chan RawChatMessage
}

// NewFakeChatSession creates a FakeChatSession with a buffered feed.
func NewFakeChatSession() *FakeChatSession {
	return &FakeChatSession{Feed: make(chan RawChatMessage, 256)}
}

func (f *FakeChatSession) Authenticate(context.Context) error { return nil }

func (f *FakeChatSession) JoinRoom(_ context.Context, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Joined = append(f.Joined, login)
	return nil
}

func (f *FakeChatSession) LeaveRoom(_ context.Context, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Left = append(f.Left, login)
	return nil
}

func (f *FakeChatSession) Messages() <-chan RawChatMessage { return f.Feed }

func (f *FakeChatSession) Close() error {
	close(f.Feed)
	return nil
}

// FakeClipClient is an in-memory ClipClient: every broadcaster is
// clippable unless listed as false, and RequestClip/RetrieveClip return
// canned results.
type FakeClipClient struct {
	mu          sync.Mutex
	Clippable   map[int64]bool
	requests    map[string]int64
	nextRequest int
}

// NewFakeClipClient creates a FakeClipClient with every broadcaster
// clippable unless listed in clippable as false.
func NewFakeClipClient(clippable map[int64]bool) *FakeClipClient {
	return &FakeClipClient{Clippable: clippable, requests: make(map[string]int64)}
}

func (f *FakeClipClient) CanClip(_ context.Context, broadcasterID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if allowed, ok := f.Clippable[broadcasterID]; ok {
		return allowed, nil
	}
	return true, nil
}

func (f *FakeClipClient) RequestClip(_ context.Context, broadcasterID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRequest++
	id := "req-" + strconv.Itoa(f.nextRequest)
	f.requests[id] = broadcasterID
	return id, nil
}

func (f *FakeClipClient) RetrieveClip(_ context.Context, requestID string) (model.Clip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.Clip{
		ClipID:       requestID,
		EmbedURL:     "https://clips.example/" + requestID + "/embed",
		ThumbnailURL: "https://clips.example/" + requestID + "/thumb",
	}, nil
}
