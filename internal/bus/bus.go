// Package bus abstracts the fan-out message transport shared by every
// worker in the pipeline: broadcaster events, chat events and anomaly
// events all move between processes as subject-addressed byte payloads
// (subject names in subjects.go). Two
// backends implement it — internal/bus/natsbus (NATS core pub/sub plus
// JetStream for durable queues) and internal/bus/kafkabus (a franz-go
// consumer-group backed variant) — selected at process start by
// BUS_DRIVER.
package bus

import "context"

// Handler processes one message's payload. A returned error means the
// message was not durably handled; whether that triggers redelivery
// depends on the backend and subscription mode.
type Handler func(payload []byte) error

// Subscription is a live subscription that can be torn down independently
// of the Bus itself.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the transport every producer and consumer in the pipeline talks
// to. subject identifies a logical stream (SubjectBroadcasterFanout,
// SubjectChatFanout, SubjectAnomalyFanout); queue groups competing
// consumers so each message is delivered to exactly one member of the
// group, the shape every worker pool in this system needs.
type Bus interface {
	// Publish sends payload to subject. It returns once the backend has
	// accepted the message; it does not wait for a remote ack from
	// durable consumers.
	Publish(ctx context.Context, subject string, payload []byte) error

	// Subscribe registers handler against subject, delivering each
	// message to at most one subscriber sharing queue. Returns a
	// Subscription the caller can tear down on shutdown.
	Subscribe(subject, queue string, handler Handler) (Subscription, error)

	// Close releases all subscriptions and the underlying connection.
	Close() error
}
