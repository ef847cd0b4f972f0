package queryapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janovak/twitch-chat-ingestor/internal/chatdb"
	"github.com/janovak/twitch-chat-ingestor/internal/cursor"
)

type fakeChatDatabase struct {
	chatsReply chatdb.GetChatsReply
	chatsErr   error
	clipsReply chatdb.GetClipsReply
	clipsErr   error
	lastArgs   chatdb.GetChatsArgs
}

func (f *fakeChatDatabase) GetChats(args chatdb.GetChatsArgs) (chatdb.GetChatsReply, error) {
	f.lastArgs = args
	return f.chatsReply, f.chatsErr
}

func (f *fakeChatDatabase) GetClips(args chatdb.GetClipsArgs) (chatdb.GetClipsReply, error) {
	return f.clipsReply, f.clipsErr
}

func newServer(db ChatDatabase) *Server {
	return NewServer(Config{}, db, nil, zerolog.Nop())
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	s.Routes(mux)
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat_ReturnsMessagesWithoutCursorWhenUnderLimit(t *testing.T) {
	mid := uuid.New().String()
	db := &fakeChatDatabase{chatsReply: chatdb.GetChatsReply{Chats: []chatdb.ChatRow{
		{BroadcasterID: 42, Timestamp: 1706745600000, MessageID: mid, Message: []byte(`{"text":"hi"}`)},
	}}}
	s := newServer(db)

	rec := doRequest(t, s, http.MethodGet, "/v1.0/42/chat?start=2024-02-01T00:00:00Z&end=2024-02-02T00:00:00Z&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 1)
	assert.Empty(t, resp.Cursor)
	assert.Equal(t, 6, db.lastArgs.Limit, "limit+1 look-ahead")
}

func TestHandleChat_ReturnsCursorWhenOverLimit(t *testing.T) {
	mid1, mid2 := uuid.New().String(), uuid.New().String()
	db := &fakeChatDatabase{chatsReply: chatdb.GetChatsReply{Chats: []chatdb.ChatRow{
		{BroadcasterID: 42, Timestamp: 1706745600000, MessageID: mid1, Message: []byte(`{}`)},
		{BroadcasterID: 42, Timestamp: 1706745601000, MessageID: mid2, Message: []byte(`{}`)},
	}}}
	s := newServer(db)

	rec := doRequest(t, s, http.MethodGet, "/v1.0/42/chat?start=2024-02-01T00:00:00Z&end=2024-02-02T00:00:00Z&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 1)
	assert.NotEmpty(t, resp.Cursor)

	key, err := cursor.DecodeKey(resp.Cursor)
	require.NoError(t, err)
	assert.Equal(t, int64(42), key.BroadcasterID)
	assert.Equal(t, int64(1706745601000), key.TimestampMs)
}

func TestHandleChat_InvalidCursorYearMonthReturns400(t *testing.T) {
	db := &fakeChatDatabase{}
	s := newServer(db)

	badCursor := cursor.EncodeKey(cursor.Key{
		BroadcasterID: 42,
		YearMonth:     202402, // does not match the timestamp's actual month (202401)
		TimestampMs:   1706745599000,
		MessageID:     uuid.New(),
	})

	rec := doRequest(t, s, http.MethodGet, "/v1.0/42/chat?start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z&after="+badCursor)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body invalidRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.InvalidRequest)
}

func TestHandleChat_CursorBroadcasterMismatchReturns400(t *testing.T) {
	db := &fakeChatDatabase{}
	s := newServer(db)

	mismatchedCursor := cursor.EncodeKey(cursor.Key{
		BroadcasterID: 99,
		YearMonth:     202401,
		TimestampMs:   1704067200000,
		MessageID:     uuid.New(),
	})

	rec := doRequest(t, s, http.MethodGet, "/v1.0/42/chat?start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z&after="+mismatchedCursor)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_InvalidLimitReturns400(t *testing.T) {
	s := newServer(&fakeChatDatabase{})
	rec := doRequest(t, s, http.MethodGet, "/v1.0/42/chat?start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z&limit=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_StorageErrorReturns500(t *testing.T) {
	db := &fakeChatDatabase{chatsErr: errors.New("cassandra unavailable")}
	s := newServer(db)
	rec := doRequest(t, s, http.MethodGet, "/v1.0/42/chat?start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleClip_ReturnsEmbedURLs(t *testing.T) {
	db := &fakeChatDatabase{clipsReply: chatdb.GetClipsReply{Clips: []chatdb.ClipRow{
		{ClipID: "c1", EmbedURL: "https://clips.example/c1", ThumbnailURL: "https://clips.example/c1/t"},
	}}}
	s := newServer(db)

	rec := doRequest(t, s, http.MethodGet, "/v1.0/clip?start=2024-01-01T00:00:00Z&end=2024-01-02T00:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp clipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"https://clips.example/c1"}, resp.ClipURLs)
}
