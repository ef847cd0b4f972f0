package storage

import (
	"context"
	"fmt"
)

// StreamerSession is the relational operation the streamer registry
// needs: idempotent insert of a newly-seen broadcaster id.
type StreamerSession interface {
	InsertStreamer(ctx context.Context, id int64) error
}

// StreamerStore wraps a StreamerSession for the registry package.
type StreamerStore struct {
	session StreamerSession
}

// NewStreamerStore wraps a StreamerSession.
func NewStreamerStore(session StreamerSession) *StreamerStore {
	return &StreamerStore{session: session}
}

// InsertStreamer records id as having been seen live at least once.
func (s *StreamerStore) InsertStreamer(ctx context.Context, id int64) error {
	if err := s.session.InsertStreamer(ctx, id); err != nil {
		return fmt.Errorf("storage: insert streamer %d: %w", id, err)
	}
	return nil
}
