// Package registry implements the streamer registry: a relational table
// of broadcaster ids ever seen live, gated by an in-process bloom filter
// so the common case (an already-known id) never touches SQL.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
)

// expectedStreamers and falsePositiveRate size the filter per the data
// model: roughly 10M entries at a 0.1% false-positive rate.
const (
	expectedStreamers = 10_000_000
	falsePositiveRate = 0.001
)

// Store is the relational insert the registry gates.
type Store interface {
	InsertStreamer(ctx context.Context, id int64) error
}

// Registry deduplicates broadcaster ids before they reach the relational
// store.
type Registry struct {
	mu      sync.Mutex
	filter  *bloom.BloomFilter
	store   Store
	metrics *metrics.Registry
}

// New creates a Registry backed by store. m may be nil.
func New(store Store, m *metrics.Registry) *Registry {
	return &Registry{
		filter:  bloom.NewWithEstimates(expectedStreamers, falsePositiveRate),
		store:   store,
		metrics: m,
	}
}

// Observe records that id was seen live. If the filter reports it as
// already seen, no SQL is issued (a false positive skips the insert of an
// id not yet in the table; at the 0.1% false-positive rate this is rare).
// Otherwise the id is added to the filter and inserted.
func (r *Registry) Observe(ctx context.Context, id int64) error {
	key := []byte(strconv.FormatInt(id, 10))

	r.mu.Lock()
	if r.filter.Test(key) {
		r.mu.Unlock()
		return nil
	}
	r.filter.Add(key)
	r.mu.Unlock()

	if err := r.store.InsertStreamer(ctx, id); err != nil {
		return fmt.Errorf("registry: observe %d: %w", id, err)
	}
	if r.metrics != nil {
		r.metrics.StreamersIngested.Inc()
	}
	return nil
}
