package chatdb

import (
	"net/rpc"
	"time"

	"github.com/rs/zerolog"

	rpctransport "github.com/janovak/twitch-chat-ingestor/internal/rpc"
)

// Client is the RPC client the query API dials against
// DATABASE_GRPC_SERVER.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a chatdb service at addr.
func Dial(addr string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	c, err := rpctransport.Dial(addr, timeout, logger)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: c}, nil
}

// GetChats calls the remote ChatDatabase.GetChats operation, registered
// as "Service.GetChats".
func (c *Client) GetChats(args GetChatsArgs) (GetChatsReply, error) {
	var reply GetChatsReply
	if err := c.rpc.Call("Service.GetChats", args, &reply); err != nil {
		return GetChatsReply{}, err
	}
	return reply, nil
}

// GetClips calls the remote ChatDatabase.GetClips operation, registered
// as "Service.GetClips".
func (c *Client) GetClips(args GetClipsArgs) (GetClipsReply, error) {
	var reply GetClipsReply
	if err := c.rpc.Call("Service.GetClips", args, &reply); err != nil {
		return GetClipsReply{}, err
	}
	return reply, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}
