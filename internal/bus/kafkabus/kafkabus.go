// Package kafkabus implements internal/bus.Bus on top of franz-go: a
// context-driven poll loop, partition-assignment logging, and manual
// offset handling. Offsets commit only after the handler succeeds
// (at-least-once redelivery on failure), and records are processed one
// at a time to match the rest of the pipeline's prefetch=1 shape.
package kafkabus

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/janovak/twitch-chat-ingestor/internal/bus"
)

// Config holds the broker list this process connects to.
type Config struct {
	Brokers []string
}

// Bus is a bus.Bus backed by a shared franz-go client used only for
// publishing; each Subscribe opens its own dedicated consumer-group
// client so unrelated subjects don't share partition assignment.
type Bus struct {
	cfg    Config
	client *kgo.Client
	logger zerolog.Logger
}

// New creates a franz-go client for publishing. Consumer-side clients
// are created lazily per Subscribe call.
func New(cfg Config, logger zerolog.Logger) (*Bus, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkabus: new client: %w", err)
	}
	logger.Info().Strs("brokers", cfg.Brokers).Msg("kafkabus: producer client ready")
	return &Bus{cfg: cfg, client: client, logger: logger}, nil
}

// Publish produces payload to the topic named subject and waits for the
// broker ack.
func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	result := b.client.ProduceSync(ctx, &kgo.Record{Topic: subject, Value: payload})
	if err := result.FirstErr(); err != nil {
		return fmt.Errorf("kafkabus: publish %s: %w", subject, err)
	}
	return nil
}

type subscription struct {
	client *kgo.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() error {
	s.cancel()
	<-s.done
	s.client.Close()
	return nil
}

// Subscribe joins consumer group queue on topic subject and runs a
// single-goroutine poll loop, committing each record's offset only
// after handler returns nil.
func (b *Bus) Subscribe(subject, queue string, handler bus.Handler) (bus.Subscription, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.cfg.Brokers...),
		kgo.ConsumerGroup(queue),
		kgo.ConsumeTopics(subject),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.OnPartitionsAssigned(func(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
			b.logger.Info().Interface("partitions", assigned).Str("topic", subject).Msg("kafkabus: partitions assigned")
		}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			b.logger.Info().Interface("partitions", revoked).Str("topic", subject).Msg("kafkabus: partitions revoked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkabus: new consumer client: %w", err)
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

			fetches := client.PollFetches(ctx)
			if ctx.Err() != nil {
				return
			}

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, fe := range errs {
					b.logger.Error().Err(fe.Err).Str("topic", fe.Topic).Int32("partition", fe.Partition).Msg("kafkabus: fetch error")
				}
			}

			fetches.EachRecord(func(record *kgo.Record) {
				if handleErr := handler(record.Value); handleErr != nil {
					b.logger.Error().Err(handleErr).Str("topic", record.Topic).Msg("kafkabus: handler failed, offset not committed")
					return
				}
				if commitErr := client.CommitRecords(ctx, record); commitErr != nil {
					b.logger.Error().Err(commitErr).Str("topic", record.Topic).Msg("kafkabus: commit failed")
				}
			})
		}
	}()

	return &subscription{client: client, cancel: cancel, done: done}, nil
}

// Close shuts down the shared producer client.
func (b *Bus) Close() error {
	b.client.Close()
	return nil
}
