// Package postgres is the PostgreSQL storage engine. Queries are built with
// goqu and executed through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	dialectPostgres = "postgres"

	tableUsers     = "users"
	tableItems     = "items"
	tableBookings  = "bookings"
	tableComments  = "comments"
	tableSyncQueue = "sync_queue"

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

var dialect = goqu.Dialect(dialectPostgres)

// Store implements domain.Repository on PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zerolog.Logger
	now    func() time.Time
}

// Open connects to dsn, checks the connection and creates missing tables.
func Open(ctx context.Context, dsn string, logger *zerolog.Logger) (*Store, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &Store{pool: pool, logger: logger, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Msg("postgres store initialized")
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        email TEXT NOT NULL UNIQUE,
        telegram_chat_id BIGINT,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS items (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        description TEXT NOT NULL,
        available BOOLEAN NOT NULL,
        owner_id BIGINT NOT NULL REFERENCES users(id),
        request_id BIGINT,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS bookings (
        id BIGSERIAL PRIMARY KEY,
        item_id BIGINT NOT NULL REFERENCES items(id),
        booker_id BIGINT NOT NULL REFERENCES users(id),
        start_date TIMESTAMPTZ NOT NULL,
        end_date TIMESTAMPTZ NOT NULL,
        status TEXT NOT NULL DEFAULT 'WAITING',
        version BIGINT NOT NULL DEFAULT 1,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS comments (
        id BIGSERIAL PRIMARY KEY,
        text TEXT NOT NULL,
        item_id BIGINT NOT NULL REFERENCES items(id),
        author_id BIGINT NOT NULL REFERENCES users(id),
        created TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
        id BIGSERIAL PRIMARY KEY,
        task_type TEXT NOT NULL,
        booking_id BIGINT NOT NULL,
        payload TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'pending',
        retry_count INTEGER NOT NULL DEFAULT 0,
        last_error TEXT,
        created_at TIMESTAMPTZ NOT NULL,
        processed_at TIMESTAMPTZ,
        next_retry_at TIMESTAMPTZ
    )`,
	`CREATE INDEX IF NOT EXISTS idx_items_owner_id ON items(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_item_id ON bookings(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_booker_id ON bookings(booker_id)`,
	`CREATE INDEX IF NOT EXISTS idx_comments_item_id ON comments(item_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error executing query %s: %w", stmt, err)
		}
	}
	return nil
}

// exec runs a built statement and returns the number of affected rows.
func (s *Store) exec(ctx context.Context, query string, args []any) (int64, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, query, args...)
	s.logQuery(query, start)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryRow(ctx context.Context, query string, args []any) pgx.Row {
	start := time.Now()
	row := s.pool.QueryRow(ctx, query, args...)
	s.logQuery(query, start)
	return row
}

func (s *Store) query(ctx context.Context, query string, args []any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	s.logQuery(query, start)
	return rows, err
}

func (s *Store) logQuery(query string, start time.Time) {
	s.logger.Debug().Str("query", query).Dur("duration", time.Since(start)).Msg("executed sql")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
