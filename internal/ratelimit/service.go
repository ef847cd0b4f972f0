package ratelimit

import "github.com/janovak/twitch-chat-ingestor/internal/metrics"

// ConsumeTokenArgs is the RPC request schema for
// RateLimiter.ConsumeToken(id, timestamp_s) → {success}.
type ConsumeTokenArgs struct {
	ID        int64
	Timestamp int64
}

// ConsumeTokenReply is the RPC response schema.
type ConsumeTokenReply struct {
	Success bool
}

// Service exposes Limiter over net/rpc. Method shape
// (func(args, *reply) error) is what net/rpc requires for exported
// methods; errors returned here are transport/server faults, never a
// rate-limit denial.
type Service struct {
	limiter *Limiter
	metrics *metrics.Registry
}

// NewService wraps a Limiter for RPC exposition. m may be nil.
func NewService(limiter *Limiter, m *metrics.Registry) *Service {
	return &Service{limiter: limiter, metrics: m}
}

// ConsumeToken is the RPC entry point.
func (s *Service) ConsumeToken(args ConsumeTokenArgs, reply *ConsumeTokenReply) error {
	reply.Success = s.limiter.ConsumeToken(args.ID, args.Timestamp)
	if !reply.Success && s.metrics != nil {
		s.metrics.RateLimitDenials.Inc()
	}
	return nil
}
