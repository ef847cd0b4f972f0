// Package queryapi implements the HTTP surface in front of the chat-DB
// RPC facade: chat history with cursor pagination, and a clip lookup.
// The HTTP framework itself is an out-of-scope collaborator, so this
// uses net/http's ServeMux pattern routing directly.
package queryapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/janovak/twitch-chat-ingestor/internal/chatdb"
	"github.com/janovak/twitch-chat-ingestor/internal/cursor"
	"github.com/janovak/twitch-chat-ingestor/internal/metrics"
	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// ChatDatabase is the RPC surface the query API calls through to.
// *chatdb.Client satisfies this.
type ChatDatabase interface {
	GetChats(args chatdb.GetChatsArgs) (chatdb.GetChatsReply, error)
	GetClips(args chatdb.GetClipsArgs) (chatdb.GetClipsReply, error)
}

// Config tunes the per-client admission throttle.
type Config struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server holds the handlers and their dependencies.
type Server struct {
	db      ChatDatabase
	logger  zerolog.Logger
	cfg     Config
	metrics *metrics.Registry

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// invalidRequest is the 400 response body shape returned on bad input.
type invalidRequest struct {
	InvalidRequest string `json:"InvalidRequest"`
}

// chatMessage is one message in a GET .../chat response.
type chatMessage struct {
	BroadcasterID int64           `json:"broadcaster_id"`
	Timestamp     int64           `json:"timestamp"`
	MessageID     string          `json:"message_id"`
	Message       json.RawMessage `json:"message"`
}

type chatResponse struct {
	Messages []chatMessage `json:"messages"`
	Cursor   string        `json:"cursor,omitempty"`
}

type clipResponse struct {
	ClipURLs []string `json:"clip_urls"`
}

// NewServer creates a Server. db is dialed once per process and reused
// across requests; the shared mutable state is the RPC client and the
// per-client limiter map guarded by limiterMu. m may be nil.
func NewServer(cfg Config, db ChatDatabase, m *metrics.Registry, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, db: db, metrics: m, logger: logger, limiters: make(map[string]*rate.Limiter)}
}

// Routes registers the handlers on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1.0/{broadcaster_id}/chat", s.instrumented("chat", s.rateLimited(s.handleChat)))
	mux.HandleFunc("GET /v1.0/clip", s.instrumented("clip", s.rateLimited(s.handleClip)))
}

// statusRecorder captures the status code written so instrumented can
// label the latency histogram by status class.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrumented records request latency and status class for route when
// s.metrics is wired; with nil metrics it calls h directly.
func (s *Server) instrumented(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			h(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		statusClass := strconv.Itoa(rec.status/100) + "xx"
		s.metrics.HTTPRequestLatency.WithLabelValues(route, statusClass).Observe(time.Since(start).Seconds())
	}
}

// rateLimited wraps h with a per-client-IP token-bucket admission
// check, ambient hardening beyond the pipeline's own rate limiter.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimitPerSecond > 0 && !s.allow(clientKey(r)) {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		h(w, r)
	}
}

func (s *Server) allow(key string) bool {
	s.limiterMu.Lock()
	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSecond), s.cfg.RateLimitBurst)
		s.limiters[key] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Allow()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeInvalidRequest(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(invalidRequest{InvalidRequest: reason})
}

func (s *Server) writeServerError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(err).Msg("queryapi: rpc call failed")
	w.WriteHeader(http.StatusInternalServerError)
}

// handleChat implements GET /v1.0/{broadcaster_id}/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	broadcasterID, err := strconv.ParseInt(r.PathValue("broadcaster_id"), 10, 64)
	if err != nil {
		writeInvalidRequest(w, "broadcaster_id must be an integer")
		return
	}

	startMs, err := parseInstantParam(r, "start")
	if err != nil {
		writeInvalidRequest(w, "start must be an ISO-8601 instant")
		return
	}
	endMs, err := parseInstantParam(r, "end")
	if err != nil {
		writeInvalidRequest(w, "end must be an ISO-8601 instant")
		return
	}

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			writeInvalidRequest(w, "limit must be between 1 and 100")
			return
		}
	}

	if after := r.URL.Query().Get("after"); after != "" {
		key, err := cursor.DecodeKey(after)
		if err != nil {
			writeInvalidRequest(w, "after: malformed cursor")
			return
		}
		if key.BroadcasterID != broadcasterID {
			writeInvalidRequest(w, "after: cursor does not belong to this broadcaster")
			return
		}
		if model.YearMonth(key.TimestampMs) != key.YearMonth {
			writeInvalidRequest(w, "after: cursor year_month does not match timestamp")
			return
		}
		startMs = key.TimestampMs
	}

	reply, err := s.db.GetChats(chatdb.GetChatsArgs{
		BroadcasterID: broadcasterID,
		StartMs:       startMs,
		EndMs:         endMs,
		Limit:         limit + 1,
	})
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	resp := chatResponse{Messages: make([]chatMessage, 0, len(reply.Chats))}
	rows := reply.Chats
	if len(rows) > limit {
		last := rows[limit]
		messageID, err := uuid.Parse(last.MessageID)
		if err != nil {
			s.writeServerError(w, err)
			return
		}
		resp.Cursor = cursor.EncodeKey(cursor.Key{
			BroadcasterID: last.BroadcasterID,
			YearMonth:     model.YearMonth(last.Timestamp),
			TimestampMs:   last.Timestamp,
			MessageID:     messageID,
		})
		rows = rows[:limit]
	}

	for _, row := range rows {
		resp.Messages = append(resp.Messages, chatMessage{
			BroadcasterID: row.BroadcasterID,
			Timestamp:     row.Timestamp,
			MessageID:     row.MessageID,
			Message:       json.RawMessage(row.Message),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleClip implements GET /v1.0/clip.
func (s *Server) handleClip(w http.ResponseWriter, r *http.Request) {
	startS, err := parseSecondsParam(r, "start")
	if err != nil {
		writeInvalidRequest(w, "start must be an ISO-8601 instant")
		return
	}
	endS, err := parseSecondsParam(r, "end")
	if err != nil {
		writeInvalidRequest(w, "end must be an ISO-8601 instant")
		return
	}

	reply, err := s.db.GetClips(chatdb.GetClipsArgs{StartS: startS, EndS: endS})
	if err != nil {
		s.writeServerError(w, err)
		return
	}

	urls := make([]string, 0, len(reply.Clips))
	for _, clip := range reply.Clips {
		urls = append(urls, clip.EmbedURL)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(clipResponse{ClipURLs: urls})
}

func parseInstantParam(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func parseSecondsParam(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

