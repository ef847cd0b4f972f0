package ratelimit

import (
	"net/rpc"
	"time"

	"github.com/rs/zerolog"

	rpctransport "github.com/janovak/twitch-chat-ingestor/internal/rpc"
)

// Client is a thin RPC client for the rate-limiter service, used by the
// chat listener's admission path.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a rate-limiter service at addr.
func Dial(addr string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	c, err := rpctransport.Dial(addr, timeout, logger)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

// ConsumeToken calls the remote ConsumeToken RPC. The returned error is an
// RPC/transport failure and bubbles to the caller; denial is reported via
// the success return, not an error.
func (c *Client) ConsumeToken(id int64, now int64) (success bool, err error) {
	var reply ConsumeTokenReply
	err = c.rpc.Call("Service.ConsumeToken", ConsumeTokenArgs{ID: id, Timestamp: now}, &reply)
	if err != nil {
		return false, err
	}
	return reply.Success, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}
