package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"basegraph.app/tally/internal/model"
)

// PgxConn is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS kv_cache (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectSQL = `SELECT value FROM kv_cache WHERE key = $1`
	upsertSQL = `INSERT INTO kv_cache (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
)

type postgresStore struct {
	conn PgxConn
	key  string
}

// NewPostgresStore keeps the snapshot in one kv_cache row, creating the table
// if needed. The upsert is a single statement, so replacement is atomic.
func NewPostgresStore(ctx context.Context, conn PgxConn, key string) (Store, error) {
	if key == "" {
		key = DefaultKey
	}
	if _, err := conn.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("creating kv_cache table: %w", err)
	}
	return &postgresStore{conn: conn, key: key}, nil
}

func (s *postgresStore) Get(ctx context.Context) (*model.Snapshot, error) {
	var data []byte
	if err := s.conn.QueryRow(ctx, selectSQL, s.key).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("selecting snapshot %s: %w", s.key, err)
	}
	return decode(data)
}

func (s *postgresStore) Set(ctx context.Context, snapshot model.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	if _, err := s.conn.Exec(ctx, upsertSQL, s.key, data); err != nil {
		return fmt.Errorf("upserting snapshot %s: %w", s.key, err)
	}

	slog.DebugContext(ctx, "snapshot written to postgres",
		"key", s.key,
		"bytes", len(data),
		"change_requests", len(snapshot.ChangeRequests))
	return nil
}
