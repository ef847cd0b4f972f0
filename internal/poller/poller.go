// Package poller implements the live-streamer poller: on a fixed
// schedule it fetches the currently-live streamers, memoizes each
// one's clip-creation capability, and republishes the admitted subset
// to the broadcaster fan-out in platform order.
package poller

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// StreamLister fetches the currently-live broadcaster list.
type StreamLister interface {
	ListLiveStreamers(ctx context.Context, n int) ([]model.BroadcasterEvent, error)
}

// ClipProbe tests whether a broadcaster currently allows clip creation.
type ClipProbe interface {
	CanClip(ctx context.Context, broadcasterID int64) (bool, error)
}

// Publisher republishes the admitted broadcaster tuple.
type Publisher interface {
	PublishBroadcasterEvent(ctx context.Context, event model.BroadcasterEvent) error
}

// Config tunes the poll schedule and fetch size.
type Config struct {
	Interval      time.Duration // default 2m
	FetchN        int           // streamers fetched per run
	CapabilityCap int           // bound on the clip-capability memo, default 100_000
}

// clipCapabilityMemo is a bounded LRU-ish map remembering, per
// broadcaster id, whether clip creation is allowed — addressing the
// unbounded-per-broadcaster-map concern by evicting the
// least-recently-touched entry once the cap is reached.
type clipCapabilityMemo struct {
	mu       sync.Mutex
	cap      int
	order    *list.List // front = most recently touched
	elements map[int64]*list.Element
	allowed  map[int64]bool
}

type memoEntry struct {
	id int64
}

func newClipCapabilityMemo(cap int) *clipCapabilityMemo {
	if cap <= 0 {
		cap = 100_000
	}
	return &clipCapabilityMemo{
		cap:      cap,
		order:    list.New(),
		elements: make(map[int64]*list.Element),
		allowed:  make(map[int64]bool),
	}
}

// lookup returns the memoized capability and whether it was known.
func (m *clipCapabilityMemo) lookup(id int64) (allowed, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.elements[id]; ok {
		m.order.MoveToFront(elem)
		return m.allowed[id], true
	}
	return false, false
}

// set records a broadcaster's capability, evicting the least-recently
// touched entry if the memo is at capacity.
func (m *clipCapabilityMemo) set(id int64, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.elements[id]; ok {
		m.order.MoveToFront(elem)
		m.allowed[id] = allowed
		return
	}
	elem := m.order.PushFront(memoEntry{id: id})
	m.elements[id] = elem
	m.allowed[id] = allowed

	if m.order.Len() > m.cap {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		evicted := oldest.Value.(memoEntry).id
		delete(m.elements, evicted)
		delete(m.allowed, evicted)
	}
}

// Poller is the live-streamer poller worker.
type Poller struct {
	cfg       Config
	lister    StreamLister
	clipProbe ClipProbe
	publisher Publisher
	memo      *clipCapabilityMemo
	metrics   *metrics.Registry
	logger    zerolog.Logger
}

// New creates a Poller. m may be nil.
func New(cfg Config, lister StreamLister, clipProbe ClipProbe, publisher Publisher, m *metrics.Registry, logger zerolog.Logger) *Poller {
	return &Poller{
		cfg:       cfg,
		lister:    lister,
		clipProbe: clipProbe,
		publisher: publisher,
		memo:      newClipCapabilityMemo(cfg.CapabilityCap),
		metrics:   m,
		logger:    logger,
	}
}

// Run blocks, polling on cfg.Interval until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil {
			p.logger.Error().Err(err).Msg("poller: poll run failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce performs one fetch-probe-publish cycle, assigning rank in
// the order streamers are admitted (skipped streamers do not consume
// a rank), matching the platform's decreasing-viewer order.
func (p *Poller) PollOnce(ctx context.Context) error {
	streamers, err := p.lister.ListLiveStreamers(ctx, p.cfg.FetchN)
	if err != nil {
		return err
	}

	rank := 0
	for _, s := range streamers {
		allowed, known := p.memo.lookup(s.ID)
		if !known {
			allowed, err = p.clipProbe.CanClip(ctx, s.ID)
			if err != nil {
				p.logger.Warn().Err(err).Int64("broadcaster_id", s.ID).Msg("poller: clip probe failed, treating as not clippable")
				allowed = false
			}
			p.memo.set(s.ID, allowed)
		}
		if !allowed {
			p.logger.Debug().Int64("broadcaster_id", s.ID).Str("login", s.Login).Msg("poller: skipping streamer without clip capability")
			continue
		}

		event := model.BroadcasterEvent{ID: s.ID, Login: s.Login, Rank: rank}
		if err := p.publisher.PublishBroadcasterEvent(ctx, event); err != nil {
			p.logger.Error().Err(err).Int64("broadcaster_id", s.ID).Msg("poller: publish broadcaster event failed, continuing")
			if p.metrics != nil {
				p.metrics.BusPublishFailures.WithLabelValues("broadcaster_fanout").Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.MessagesProcessed.WithLabelValues("poller").Inc()
		}
		rank++
	}
	return nil
}
