// Package platform defines the boundary to the third-party streaming
// platform SDK (authentication, chat socket, stream listing, clip
// creation) — an out-of-scope collaborator per the purpose-and-scope
// boundary. It specifies narrow interfaces only; a production build
// wires a real SDK client behind them. In-memory fakes here back unit
// tests for the workers that depend on this boundary.
package platform

import (
	"context"
	"errors"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// RawChatMessage is one message as handed off by the chat socket, before
// listener-side validation and normalization into model.ChatMessage.
type RawChatMessage struct {
	ID            string
	BroadcasterID int64
	Timestamp     int64
	Message       []byte
}

// ChatSession is a long-lived authenticated connection to the chat
// socket for one process. Joins, leaves, and the read side are not safe
// for concurrent use by more than one mutex-holding caller, matching the
// platform SDK's single-writer chat socket.
type ChatSession interface {
	Authenticate(ctx context.Context) error
	JoinRoom(ctx context.Context, login string) error
	LeaveRoom(ctx context.Context, login string) error
	Messages() <-chan RawChatMessage
	Close() error
}

// StreamLister fetches the currently-live broadcaster list.
type StreamLister interface {
	ListLiveStreamers(ctx context.Context, n int) ([]model.BroadcasterEvent, error)
}

// ClipClient is the clip-capability probe and the two-phase clip
// creation call.
type ClipClient interface {
	CanClip(ctx context.Context, broadcasterID int64) (bool, error)
	RequestClip(ctx context.Context, broadcasterID int64) (requestID string, err error)
	RetrieveClip(ctx context.Context, requestID string) (model.Clip, error)
}

// ErrNotImplemented is returned by the production stub below; a real
// deployment replaces NewClient's return value with a client wired to
// the actual platform SDK.
var ErrNotImplemented = errors.New("platform: production SDK client not wired")

// client is a placeholder production adapter. It exists so main.go has
// a concrete type to construct; every method returns ErrNotImplemented
// until a real SDK dependency is wired in.
type client struct{}

// NewClient documents where the real platform SDK plugs in. It compiles
// and satisfies ChatSession, StreamLister, and ClipClient, but every
// call fails until wired to a real client.
func NewClient() *client {
	return &client{}
}

func (c *client) Authenticate(context.Context) error { return ErrNotImplemented }
func (c *client) JoinRoom(context.Context, string) error { return ErrNotImplemented }
func (c *client) LeaveRoom(context.Context, string) error { return ErrNotImplemented }
func (c *client) Messages() <-chan RawChatMessage { return nil }
func (c *client) Close() error { return nil }

func (c *client) ListLiveStreamers(context.Context, int) ([]model.BroadcasterEvent, error) {
	return nil, ErrNotImplemented
}

func (c *client) CanClip(context.Context, int64) (bool, error) { return false, ErrNotImplemented }
func (c *client) RequestClip(context.Context, int64) (string, error) {
	return "", ErrNotImplemented
}
func (c *client) RetrieveClip(context.Context, string) (model.Clip, error) {
	return model.Clip{}, ErrNotImplemented
}
