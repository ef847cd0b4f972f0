// Package storage implements the partitioned insert/range-scan logic for
// chat messages and clips, and the relational streamer table, each behind
// a narrow Session interface so the partition-key grouping and
// multi-month scan loop are unit-testable without a live cluster. The
// wide-column and relational drivers themselves (gocql, pgx) are
// out-of-scope collaborators per the purpose-and-scope boundary; only
// their narrow Session shape is specified here.
package storage

import (
	"context"
	"fmt"

	"github.com/janovak/twitch-chat-ingestor/internal/model"
)

// ChatSession is the partition-addressed operations a wide-column
// backend must support. One logical partition is
// (broadcaster_id, year_month).
type ChatSession interface {
	// InsertPartitionBatch writes rows — all belonging to the same
	// partition — in one unlogged, quorum-consistency batch.
	InsertPartitionBatch(ctx context.Context, broadcasterID int64, yearMonth int, rows []model.ChatMessage) error

	// SelectPartitionRange reads up to limit rows from one partition
	// whose timestamp falls in [startMs, endMs], ordered by
	// (timestamp, message_id).
	SelectPartitionRange(ctx context.Context, broadcasterID int64, yearMonth int, startMs, endMs int64, limit int) ([]model.ChatMessage, error)
}

// maxBatchRows caps a single insert batch at 1000 rows.
const maxBatchRows = 1000

// ChatStore implements the chat half of the storage adapter: grouping
// writes by partition key and looping range reads across month
// boundaries.
type ChatStore struct {
	session ChatSession
}

// NewChatStore wraps a ChatSession.
func NewChatStore(session ChatSession) *ChatStore {
	return &ChatStore{session: session}
}

// InsertChats groups rows by (broadcaster_id, year_month) and writes
// each group in batches of at most maxBatchRows, preserving the input
// order within each partition.
func (s *ChatStore) InsertChats(ctx context.Context, rows []model.ChatMessage) error {
	type partitionKey struct {
		broadcasterID int64
		yearMonth     int
	}

	order := make([]partitionKey, 0, len(rows))
	groups := make(map[partitionKey][]model.ChatMessage)
	for _, row := range rows {
		key := partitionKey{broadcasterID: row.BroadcasterID, yearMonth: row.YearMonth()}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	for _, key := range order {
		group := groups[key]
		for start := 0; start < len(group); start += maxBatchRows {
			end := start + maxBatchRows
			if end > len(group) {
				end = len(group)
			}
			if err := s.session.InsertPartitionBatch(ctx, key.broadcasterID, key.yearMonth, group[start:end]); err != nil {
				return fmt.Errorf("storage: insert partition batch (broadcaster=%d, year_month=%d): %w", key.broadcasterID, key.yearMonth, err)
			}
		}
	}
	return nil
}

// GetChats walks partitions from the month containing startMs through
// the month containing endMs, accumulating up to limit rows.
func (s *ChatStore) GetChats(ctx context.Context, broadcasterID, startMs, endMs int64, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}

	month := model.YearMonth(startMs)
	endMonth := model.YearMonth(endMs)

	var collected []model.ChatMessage
	for {
		remaining := limit - len(collected)
		if remaining <= 0 {
			break
		}

		rows, err := s.session.SelectPartitionRange(ctx, broadcasterID, month, startMs, endMs, remaining)
		if err != nil {
			return nil, fmt.Errorf("storage: select partition range (broadcaster=%d, year_month=%d): %w", broadcasterID, month, err)
		}
		collected = append(collected, rows...)

		if len(collected) >= limit || month >= endMonth {
			break
		}
		month = model.NextYearMonth(month)
	}

	if len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}
