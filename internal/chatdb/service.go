// Package chatdb exposes the storage adapter over RPC: ChatDatabase.GetChats
// and ChatDatabase.GetClips, reshaping wide-column/relational rows into the
// RPC response messages the query API consumes.
package chatdb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// ChatReader is the read path of the chat storage adapter.
type ChatReader interface {
	GetChats(ctx context.Context, broadcasterID, startMs, endMs int64, limit int) ([]model.ChatMessage, error)
}

// ClipReader is the read path of the clip storage adapter.
type ClipReader interface {
	GetClips(ctx context.Context, startS, endS int64) ([]model.Clip, error)
}

// ChatRow is the wire shape of one chat message in an RPC reply.
type ChatRow struct {
	BroadcasterID int64
	Timestamp     int64
	MessageID     string
	Message       []byte
}

// GetChatsArgs is the ChatDatabase.GetChats RPC request.
type GetChatsArgs struct {
	BroadcasterID int64
	StartMs       int64
	EndMs         int64
	Limit         int
}

// GetChatsReply is the ChatDatabase.GetChats RPC response.
type GetChatsReply struct {
	Chats []ChatRow
}

// ClipRow is the wire shape of one clip in an RPC reply.
type ClipRow struct {
	ClipID       string
	EmbedURL     string
	ThumbnailURL string
}

// GetClipsArgs is the ChatDatabase.GetClips RPC request.
type GetClipsArgs struct {
	StartS int64
	EndS   int64
}

// GetClipsReply is the ChatDatabase.GetClips RPC response.
type GetClipsReply struct {
	Clips []ClipRow
}

// Service implements the ChatDatabase RPC surface over net/rpc.
type Service struct {
	chats   ChatReader
	clips   ClipReader
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewService wraps the storage readers for RPC exposition. m may be nil.
func NewService(chats ChatReader, clips ClipReader, m *metrics.Registry, logger zerolog.Logger) *Service {
	return &Service{chats: chats, clips: clips, metrics: m, logger: logger}
}

// GetChats implements ChatDatabase.GetChats; net/rpc registers it under
// the type name, as "Service.GetChats".
func (s *Service) GetChats(args GetChatsArgs, reply *GetChatsReply) error {
	rows, err := s.chats.GetChats(context.Background(), args.BroadcasterID, args.StartMs, args.EndMs, args.Limit)
	if err != nil {
		s.logger.Error().Err(err).Int64("broadcaster_id", args.BroadcasterID).Msg("chatdb: GetChats failed")
		return fmt.Errorf("chatdb: get chats: %w", err)
	}

	reply.Chats = make([]ChatRow, len(rows))
	for i, row := range rows {
		reply.Chats[i] = ChatRow{
			BroadcasterID: row.BroadcasterID,
			Timestamp:     row.Timestamp,
			MessageID:     row.MessageID.String(),
			Message:       row.Message,
		}
	}
	if s.metrics != nil {
		s.metrics.MessagesProcessed.WithLabelValues("chatdb_get_chats").Inc()
	}
	return nil
}

// GetClips implements ChatDatabase.GetClips; net/rpc registers it under
// the type name, as "Service.GetClips".
func (s *Service) GetClips(args GetClipsArgs, reply *GetClipsReply) error {
	clips, err := s.clips.GetClips(context.Background(), args.StartS, args.EndS)
	if err != nil {
		s.logger.Error().Err(err).Msg("chatdb: GetClips failed")
		return fmt.Errorf("chatdb: get clips: %w", err)
	}

	reply.Clips = make([]ClipRow, len(clips))
	for i, clip := range clips {
		reply.Clips[i] = ClipRow{ClipID: clip.ClipID, EmbedURL: clip.EmbedURL, ThumbnailURL: clip.ThumbnailURL}
	}
	if s.metrics != nil {
		s.metrics.MessagesProcessed.WithLabelValues("chatdb_get_clips").Inc()
	}
	return nil
}
