// Package listener implements the chat-listener worker: it tracks which
// broadcasters are currently being listened to, admits new ones under a
// distributed rate limit, joins/leaves rooms on the platform session,
// and republishes validated, normalized chat messages.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
	"github.com/janovak/twitch-chat-ingestor/internal/platform"
)

// RateLimiter is the admission check the listener consults before
// joining a new room.
type RateLimiter interface {
	ConsumeToken(id int64, now int64) (success bool, err error)
}

// ChatPublisher delivers a validated, normalized chat message to the
// chat fan-out.
type ChatPublisher interface {
	PublishChatMessage(ctx context.Context, msg model.ChatMessage) error
}

// Config tunes the admission path.
type Config struct {
	TopN         int           // only ranks below this are admitted
	CacheTTL     time.Duration // default 300s
	RetryTimeout time.Duration // default 300s (LISTENER_RETRY_TIMEOUT) for every bus driver; no separate Kafka default
}

// Listener is the chat-listener worker.
type Listener struct {
	cfg         Config
	session     platform.ChatSession
	rateLimiter RateLimiter
	publisher   ChatPublisher
	cache       Cache
	metrics     *metrics.Registry
	logger      zerolog.Logger

	mu              sync.Mutex
	onlineStreamers map[string]struct{}

	platformMu sync.Mutex // serializes writes on the platform chat socket (JoinRoom/LeaveRoom)
	publishMu  sync.Mutex // serializes publish-to-broker calls; broker clients are not multi-write safe
}

// New creates a Listener. cache.Expired() is consumed by
// RunEvictionLoop. m may be nil.
func New(cfg Config, session platform.ChatSession, rateLimiter RateLimiter, publisher ChatPublisher, cache Cache, m *metrics.Registry, logger zerolog.Logger) *Listener {
	return &Listener{
		cfg:             cfg,
		session:         session,
		rateLimiter:     rateLimiter,
		publisher:       publisher,
		cache:           cache,
		metrics:         m,
		logger:          logger,
		onlineStreamers: make(map[string]struct{}),
	}
}

// HandleBroadcasterEvent processes one broadcaster_fanout payload: the
// room-admission path.
func (l *Listener) HandleBroadcasterEvent(ctx context.Context, payload []byte) error {
	var ev model.BroadcasterEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.Warn().Err(err).Msg("listener: dropping undecodable broadcaster event")
		return nil
	}

	l.mu.Lock()
	_, online := l.onlineStreamers[ev.Login]
	l.mu.Unlock()

	if online {
		l.cache.Refresh(ev.Login)
		return nil
	}

	if ev.Rank >= l.cfg.TopN {
		l.cache.Refresh(ev.Login)
		return nil
	}

	granted, err := l.admitWithRetry(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("listener: rate limiter: %w", err)
	}
	if !granted {
		l.logger.Warn().Int64("broadcaster_id", ev.ID).Str("login", ev.Login).Msg("listener: rate limiter admission timed out, skipping")
		l.cache.Refresh(ev.Login)
		return nil
	}

	l.mu.Lock()
	l.onlineStreamers[ev.Login] = struct{}{}
	l.mu.Unlock()

	l.cache.Set(ev.Login, l.cfg.CacheTTL)

	l.platformMu.Lock()
	joinErr := l.session.JoinRoom(ctx, ev.Login)
	l.platformMu.Unlock()
	if joinErr != nil {
		l.logger.Error().Err(joinErr).Str("login", ev.Login).Msg("listener: join room failed, continuing")
	}

	l.cache.Refresh(ev.Login)
	return nil
}

// admitWithRetry polls the rate limiter once per second until granted or
// cfg.RetryTimeout elapses.
func (l *Listener) admitWithRetry(ctx context.Context, id int64) (bool, error) {
	deadline := time.Now().Add(l.cfg.RetryTimeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		ok, err := l.rateLimiter.ConsumeToken(id, time.Now().Unix())
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunEvictionLoop consumes cache expiry events until ctx is canceled,
// removing the evicted login from online_streamers and leaving its
// room.
func (l *Listener) RunEvictionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case login, ok := <-l.cache.Expired():
			if !ok {
				return
			}
			l.mu.Lock()
			delete(l.onlineStreamers, login)
			l.mu.Unlock()

			l.platformMu.Lock()
			if err := l.session.LeaveRoom(ctx, login); err != nil {
				l.logger.Error().Err(err).Str("login", login).Msg("listener: leave room failed")
			}
			l.platformMu.Unlock()
		}
	}
}

var (
	errInvalidMessageID     = errors.New("listener: message id is not a valid uuid")
	errInvalidTimestamp     = errors.New("listener: timestamp must be > 0")
	errInvalidBroadcasterID = errors.New("listener: broadcaster id must be > 0")
)

// validate checks a raw chat message against the message path rule:
// id is a UUID, timestamp > 0, room id > 0. Whether a user is present
// is not checked.
func validate(raw platform.RawChatMessage) (uuid.UUID, error) {
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return uuid.UUID{}, errInvalidMessageID
	}
	if raw.Timestamp <= 0 {
		return uuid.UUID{}, errInvalidTimestamp
	}
	if raw.BroadcasterID <= 0 {
		return uuid.UUID{}, errInvalidBroadcasterID
	}
	return id, nil
}

// RunMessageLoop reads raw chat messages from the platform session,
// validates and normalizes them, and republishes them until the
// session's channel closes or ctx is canceled.
func (l *Listener) RunMessageLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-l.session.Messages():
			if !ok {
				return
			}
			id, err := validate(raw)
			if err != nil {
				l.logger.Warn().Err(err).Msg("listener: dropping invalid chat message")
				if l.metrics != nil {
					l.metrics.MessagesDropped.WithLabelValues("invalid").Inc()
				}
				continue
			}

			msg := model.ChatMessage{
				BroadcasterID: raw.BroadcasterID,
				Timestamp:     raw.Timestamp,
				MessageID:     id,
				Message:       raw.Message,
			}

			start := time.Now()
			l.publishMu.Lock()
			pubErr := l.publisher.PublishChatMessage(ctx, msg)
			l.publishMu.Unlock()
			if l.metrics != nil {
				l.metrics.BusPublishLatency.Observe(time.Since(start).Seconds())
			}
			if pubErr != nil {
				l.logger.Error().Err(pubErr).Msg("listener: publish chat message failed")
				if l.metrics != nil {
					l.metrics.BusPublishFailures.WithLabelValues("chat_fanout").Inc()
				}
				continue
			}
			if l.metrics != nil {
				l.metrics.MessagesProcessed.WithLabelValues("listener").Inc()
			}
		}
	}
}
