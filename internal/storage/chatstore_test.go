package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

type partitionKey struct {
	broadcasterID int64
	yearMonth     int
}

// fakeChatSession is an in-memory ChatSession for exercising ChatStore's
// partition-grouping and multi-month scan logic without a live cluster.
type fakeChatSession struct {
	partitions      map[partitionKey][]model.ChatMessage
	insertBatchSize []int
}

func newFakeChatSession() *fakeChatSession {
	return &fakeChatSession{partitions: make(map[partitionKey][]model.ChatMessage)}
}

func (f *fakeChatSession) InsertPartitionBatch(_ context.Context, broadcasterID int64, yearMonth int, rows []model.ChatMessage) error {
	key := partitionKey{broadcasterID, yearMonth}
	f.partitions[key] = append(f.partitions[key], rows...)
	f.insertBatchSize = append(f.insertBatchSize, len(rows))
	return nil
}

func (f *fakeChatSession) SelectPartitionRange(_ context.Context, broadcasterID int64, yearMonth int, startMs, endMs int64, limit int) ([]model.ChatMessage, error) {
	key := partitionKey{broadcasterID, yearMonth}
	var out []model.ChatMessage
	for _, row := range f.partitions[key] {
		if row.Timestamp >= startMs && row.Timestamp <= endMs {
			out = append(out, row)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func msg(broadcasterID, timestampMs int64) model.ChatMessage {
	return model.ChatMessage{BroadcasterID: broadcasterID, Timestamp: timestampMs, MessageID: uuid.New(), Message: []byte(`{}`)}
}

func TestChatStore_InsertChats_GroupsByPartitionAndChunks(t *testing.T) {
	session := newFakeChatSession()
	store := NewChatStore(session)

	rows := make([]model.ChatMessage, 0, 2500)
	for i := 0; i < 2500; i++ {
		rows = append(rows, msg(1, 1704067200000+int64(i)))
	}

	require.NoError(t, store.InsertChats(context.Background(), rows))

	key := partitionKey{1, model.YearMonth(1704067200000)}
	assert.Len(t, session.partitions[key], 2500)
	assert.Equal(t, []int{1000, 1000, 500}, session.insertBatchSize)
}

func TestChatStore_GetChats_CrossMonthQuery(t *testing.T) {
	session := newFakeChatSession()
	store := NewChatStore(session)

	// 2024-01-31T23:59:59.000Z and 2024-02-01T00:00:01.000Z
	jan := msg(7, 1706745599000)
	feb := msg(7, 1706745601000)
	require.NoError(t, store.InsertChats(context.Background(), []model.ChatMessage{jan, feb}))

	got, err := store.GetChats(context.Background(), 7, 1706745598000, 1706745602000, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, jan.Timestamp, got[0].Timestamp)
	assert.Equal(t, feb.Timestamp, got[1].Timestamp)
}

func TestChatStore_GetChats_CompletenessUnderLimit(t *testing.T) {
	session := newFakeChatSession()
	store := NewChatStore(session)

	var rows []model.ChatMessage
	for i := 0; i < 5; i++ {
		rows = append(rows, msg(1, 1704067200000+int64(i)*1000))
	}
	require.NoError(t, store.InsertChats(context.Background(), rows))

	got, err := store.GetChats(context.Background(), 1, 1704067200000, 1704067200000+10000, 20)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestChatStore_GetChats_TruncatesAtLimit(t *testing.T) {
	session := newFakeChatSession()
	store := NewChatStore(session)

	var rows []model.ChatMessage
	for i := 0; i < 5; i++ {
		rows = append(rows, msg(1, 1704067200000+int64(i)*1000))
	}
	require.NoError(t, store.InsertChats(context.Background(), rows))

	got, err := store.GetChats(context.Background(), 1, 1704067200000, 1704067200000+10000, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
