// Package natsbus implements internal/bus.Bus on top of NATS JetStream:
// every subject is mirrored into a JetStream stream so a subscriber
// restart replays unacked messages instead of losing them, and each
// Subscribe opens a pull consumer fetching one message at a time
// (prefetch=1) to match the rest of the pipeline's
// one-goroutine-per-consume-loop shape.
package natsbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/bus"
)

// Config holds NATS client connection tuning knobs, all with sane
// production defaults if left zero.
type Config struct {
	URL             string
	StreamName      string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

// Bus is a bus.Bus backed by a single NATS connection and JetStream
// context, shared across every Publish/Subscribe call.
type Bus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	stream string
	logger zerolog.Logger
}

// New connects to NATS and ensures the backing stream exists.
func New(cfg Config, logger zerolog.Logger) (*Bus, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = "CHATPIPE"
	}

	opts := []nats.Option{
		nats.MaxReconnects(orDefaultInt(cfg.MaxReconnects, 10)),
		nats.ReconnectWait(orDefaultDuration(cfg.ReconnectWait, 2*time.Second)),
		nats.ReconnectJitter(orDefaultDuration(cfg.ReconnectJitter, 500*time.Millisecond), 0),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("natsbus: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("natsbus: reconnected")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("natsbus: async error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsbus: connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("natsbus: jetstream context: %w", err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.StreamName + ".>"},
		Storage:  nats.FileStorage,
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		conn.Close()
		return nil, fmt.Errorf("natsbus: add stream: %w", err)
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Str("stream", cfg.StreamName).Msg("natsbus: connected")

	return &Bus{conn: conn, js: js, stream: cfg.StreamName, logger: logger}, nil
}

func (b *Bus) fullSubject(subject string) string {
	return b.stream + "." + subject
}

// Publish sends payload on subject via JetStream, so it lands in the
// durable stream before this call returns.
func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	_, err := b.js.Publish(b.fullSubject(subject), payload, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("natsbus: publish %s: %w", subject, err)
	}
	return nil
}

// subscription wraps a JetStream pull subscription and the goroutine
// that drains it one message at a time.
type subscription struct {
	sub    *nats.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	return s.sub.Unsubscribe()
}

// Subscribe opens a durable JetStream pull consumer named queue and runs
// a single-goroutine fetch loop (prefetch=1) that hands each message's
// payload to handler, acking only once handler returns nil.
func (b *Bus) Subscribe(subject, queue string, handler bus.Handler) (bus.Subscription, error) {
	full := b.fullSubject(subject)

	sub, err := b.js.PullSubscribe(full, queue, nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		return nil, fmt.Errorf("natsbus: pull subscribe %s/%s: %w", subject, queue, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msgs, err := sub.Fetch(1, nats.MaxWait(2*time.Second))
			if err != nil {
				if err == nats.ErrTimeout || err == context.DeadlineExceeded {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				b.logger.Error().Err(err).Str("subject", full).Msg("natsbus: fetch failed")
				continue
			}

			for _, msg := range msgs {
				if handleErr := handler(msg.Data); handleErr != nil {
					b.logger.Error().Err(handleErr).Str("subject", full).Msg("natsbus: handler failed, message will be redelivered")
					_ = msg.Nak()
					continue
				}
				if ackErr := msg.Ack(); ackErr != nil {
					b.logger.Error().Err(ackErr).Str("subject", full).Msg("natsbus: ack failed")
				}
			}
		}
	}()

	return &subscription{sub: sub, cancel: cancel, done: done}, nil
}

// Close closes the connection without draining it. Individual
// subscriptions should be torn down first via their own Unsubscribe.
func (b *Bus) Close() error {
	b.conn.Close()
	return nil
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
