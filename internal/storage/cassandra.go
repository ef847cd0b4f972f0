package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

const (
	insertChatCQL = `INSERT INTO chat_by_broadcaster_and_timestamp
		(broadcaster_id, year_month, timestamp, message_id, message)
		VALUES (?, ?, ?, ?, ?)`

	selectChatRangeCQL = `SELECT broadcaster_id, timestamp, message_id, message
		FROM chat_by_broadcaster_and_timestamp
		WHERE broadcaster_id = ? AND year_month = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, message_id ASC`

	insertClipCQL = `INSERT INTO clips_by_timestamp
		(partition_key, timestamp, clip_id, embed_url, thumbnail_url)
		VALUES (1, ?, ?, ?, ?)`

	selectClipRangeCQL = `SELECT timestamp, clip_id, embed_url, thumbnail_url
		FROM clips_by_timestamp
		WHERE partition_key = 1 AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`
)

// CassandraConfig configures the wide-column session.
type CassandraConfig struct {
	Hosts             []string      `env:"CASSANDRA_HOSTS" envSeparator:","`
	Keyspace          string        `env:"CASSANDRA_KEYSPACE" envDefault:"twitch_chat_ingestor"`
	ConnectTimeout    time.Duration `env:"CASSANDRA_CONNECT_TIMEOUT" envDefault:"10s"`
	Timeout           time.Duration `env:"CASSANDRA_TIMEOUT" envDefault:"5s"`
}

// CassandraSession implements ChatSession and ClipSession over a live
// gocql.Session.
type CassandraSession struct {
	session *gocql.Session
}

// NewCassandraSession opens a quorum-consistency session against the
// configured hosts.
func NewCassandraSession(cfg CassandraConfig) (*CassandraSession, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("storage: cassandra create session: %w", err)
	}
	return &CassandraSession{session: session}, nil
}

// InsertPartitionBatch writes rows for one (broadcaster_id, year_month)
// partition in one unlogged batch.
func (c *CassandraSession) InsertPartitionBatch(ctx context.Context, broadcasterID int64, yearMonth int, rows []model.ChatMessage) error {
	batch := c.session.NewBatch(gocql.UnloggedBatch)
	batch.SetConsistency(gocql.Quorum)
	for _, row := range rows {
		batch.Query(insertChatCQL, broadcasterID, yearMonth, row.Timestamp, row.MessageID.String(), []byte(row.Message))
	}
	if err := c.session.ExecuteBatch(batch.WithContext(ctx)); err != nil {
		return fmt.Errorf("cassandra: execute batch: %w", err)
	}
	return nil
}

// SelectPartitionRange reads at most limit rows from one partition.
func (c *CassandraSession) SelectPartitionRange(ctx context.Context, broadcasterID int64, yearMonth int, startMs, endMs int64, limit int) ([]model.ChatMessage, error) {
	iter := c.session.Query(selectChatRangeCQL, broadcasterID, yearMonth, startMs, endMs).
		WithContext(ctx).
		PageSize(limit).
		Iter()

	var rows []model.ChatMessage
	var bid int64
	var ts int64
	var midStr string
	var msg []byte
	for len(rows) < limit && iter.Scan(&bid, &ts, &midStr, &msg) {
		mid, err := uuid.Parse(midStr)
		if err != nil {
			continue
		}
		rows = append(rows, model.ChatMessage{
			BroadcasterID: bid,
			Timestamp:     ts,
			MessageID:     mid,
			Message:       append([]byte(nil), msg...),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("cassandra: iterate rows: %w", err)
	}
	return rows, nil
}

// InsertClip appends one clip row.
func (c *CassandraSession) InsertClip(ctx context.Context, clip model.Clip) error {
	if err := c.session.Query(insertClipCQL, clip.Timestamp, clip.ClipID, clip.EmbedURL, clip.ThumbnailURL).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("cassandra: insert clip: %w", err)
	}
	return nil
}

// SelectClipRange reads every clip with timestamp in [startS, endS].
func (c *CassandraSession) SelectClipRange(ctx context.Context, startS, endS int64) ([]model.Clip, error) {
	iter := c.session.Query(selectClipRangeCQL, startS, endS).WithContext(ctx).Iter()

	var clips []model.Clip
	var ts int64
	var clipID, embedURL, thumbnailURL string
	for iter.Scan(&ts, &clipID, &embedURL, &thumbnailURL) {
		clips = append(clips, model.Clip{ClipID: clipID, Timestamp: ts, EmbedURL: embedURL, ThumbnailURL: thumbnailURL})
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("cassandra: iterate clips: %w", err)
	}
	return clips, nil
}

// Close releases the underlying session.
func (c *CassandraSession) Close() {
	c.session.Close()
}
