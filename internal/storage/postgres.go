package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const insertStreamerSQL = `INSERT INTO streamer (streamer_id) VALUES ($1) ON CONFLICT (streamer_id) DO NOTHING`

// PostgresConfig configures the relational streamer table.
type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN" envDefault:"postgres://localhost:5432/twitch_chat_ingestor"`
}

// PostgresSession implements StreamerSession over a pgx connection pool.
type PostgresSession struct {
	pool *pgxpool.Pool
}

// NewPostgresSession opens a connection pool against cfg.DSN.
func NewPostgresSession(ctx context.Context, cfg PostgresConfig) (*PostgresSession, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: postgres connect: %w", err)
	}
	return &PostgresSession{pool: pool}, nil
}

// InsertStreamer is an idempotent insert, safe to call for a broadcaster
// id already in the table.
func (p *PostgresSession) InsertStreamer(ctx context.Context, id int64) error {
	if _, err := p.pool.Exec(ctx, insertStreamerSQL, id); err != nil {
		return fmt.Errorf("postgres: insert streamer: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresSession) Close() {
	p.pool.Close()
}
