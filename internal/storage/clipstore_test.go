package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

type fakeClipSession struct {
	clips []model.Clip
}

func (f *fakeClipSession) InsertClip(_ context.Context, clip model.Clip) error {
	f.clips = append(f.clips, clip)
	return nil
}

func (f *fakeClipSession) SelectClipRange(_ context.Context, startS, endS int64) ([]model.Clip, error) {
	var out []model.Clip
	for _, c := range f.clips {
		if c.Timestamp >= startS && c.Timestamp <= endS {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestClipStore_InsertAndRange(t *testing.T) {
	session := &fakeClipSession{}
	store := NewClipStore(session)

	require.NoError(t, store.InsertClip(context.Background(), model.Clip{ClipID: "a", Timestamp: 100}))
	require.NoError(t, store.InsertClip(context.Background(), model.Clip{ClipID: "b", Timestamp: 200}))

	got, err := store.GetClips(context.Background(), 50, 150)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ClipID)
}
