// Package rpc carries the shared dial/serve helpers for the two RPC
// services this system exposes (ChatDatabase, RateLimiter), built on the
// standard library's net/rpc. See DESIGN.md for why this transport uses
// net/rpc rather than a generated gRPC stack.
package rpc

import (
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/rs/zerolog"
)

// Dial connects to an RPC server at addr with a bounded timeout, logging
// structured fields on connect failure.
func Dial(addr string, timeout time.Duration, logger zerolog.Logger) (*rpc.Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("rpc dial failed")
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("rpc client connected")
	return rpc.NewClient(conn), nil
}

// Serve registers svc under its default name and blocks accepting
// connections on addr until the listener is closed.
func Serve(addr string, svc any, logger zerolog.Logger) error {
	server := rpc.NewServer()
	if err := server.Register(svc); err != nil {
		return fmt.Errorf("rpc: register: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	logger.Info().Str("addr", addr).Msg("rpc server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("rpc: accept: %w", err)
		}
		go server.ServeConn(conn)
	}
}
