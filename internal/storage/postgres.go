package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"autoprofile/internal/config"
)

const documentName = "profiles"

// PostgresBackend stores the document as one jsonb row and announces every
// write with pg_notify so other daemons sharing the database re-read it.
type PostgresBackend struct {
	pool    *pgxpool.Pool
	channel string
}

func NewPostgres(ctx context.Context, cfg config.Config) (*PostgresBackend, error) {
	dsn := cfg.DSN()
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)
	poolCfg.MinConns = int32(cfg.Postgres.MinConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &PostgresBackend{pool: pool, channel: cfg.Listener.Channel}, nil
}

func (s *PostgresBackend) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresBackend) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS autoprofile_documents (
			name       TEXT PRIMARY KEY,
			body       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var body string
	err := s.pool.QueryRow(ctx,
		`SELECT body::text FROM autoprofile_documents WHERE name = $1`, documentName,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return []byte(body), nil
}

// Write upserts the document and notifies listeners in the same transaction.
func (s *PostgresBackend) Write(ctx context.Context, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		INSERT INTO autoprofile_documents (name, body, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = now()
	`, documentName, string(raw)); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, s.ListenChannel(), documentName); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresBackend) ListenChannel() string {
	if s.channel == "" {
		return "autoprofile_changed"
	}
	return s.channel
}

func (s *PostgresBackend) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
