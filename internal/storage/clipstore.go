package storage

import (
	"context"
	"fmt"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// ClipSession is the single-partition operations clips_by_timestamp
// needs. All clips share one partition key, clustered by timestamp.
type ClipSession interface {
	InsertClip(ctx context.Context, clip model.Clip) error
	SelectClipRange(ctx context.Context, startS, endS int64) ([]model.Clip, error)
}

// ClipStore implements the clip half of the storage adapter.
type ClipStore struct {
	session ClipSession
}

// NewClipStore wraps a ClipSession.
func NewClipStore(session ClipSession) *ClipStore {
	return &ClipStore{session: session}
}

// InsertClip appends one row keyed by the clip's timestamp.
func (s *ClipStore) InsertClip(ctx context.Context, clip model.Clip) error {
	if err := s.session.InsertClip(ctx, clip); err != nil {
		return fmt.Errorf("storage: insert clip: %w", err)
	}
	return nil
}

// GetClips reads every clip with timestamp in [startS, endS].
func (s *ClipStore) GetClips(ctx context.Context, startS, endS int64) ([]model.Clip, error) {
	clips, err := s.session.SelectClipRange(ctx, startS, endS)
	if err != nil {
		return nil, fmt.Errorf("storage: select clip range: %w", err)
	}
	return clips, nil
}
