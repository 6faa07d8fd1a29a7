// Package store provides PostgreSQL persistence for API keys and their usage
// statistics. It is host-side plumbing: the scheduler core never touches it,
// it only fires the pool hooks the CLI wires to this store.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thisnaeem/metagen/internal/keypool"
)

// Store wraps a PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the api_keys table if it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS api_keys (
			id UUID PRIMARY KEY,
			secret TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			request_count INTEGER NOT NULL DEFAULT 0,
			last_request_at TIMESTAMPTZ,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create api_keys table: %w", err)
	}
	return nil
}

// SaveCredential upserts one key's state and usage counters.
func (s *Store) SaveCredential(ctx context.Context, snap keypool.Snapshot) error {
	var lastRequestAt any
	if !snap.LastRequestAt.IsZero() {
		lastRequestAt = snap.LastRequestAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, secret, display_name, state, request_count, last_request_at, last_error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			request_count = EXCLUDED.request_count,
			last_request_at = EXCLUDED.last_request_at,
			last_error = EXCLUDED.last_error`,
		snap.ID, snap.Secret, snap.DisplayName, string(snap.State),
		snap.RequestCount, lastRequestAt, snap.LastError, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential %s: %w", snap.ID, err)
	}
	return nil
}

// DeleteCredential removes one key.
func (s *Store) DeleteCredential(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", id, err)
	}
	return nil
}

// ListCredentials returns every persisted key in registration order.
func (s *Store) ListCredentials(ctx context.Context) ([]keypool.Snapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, secret, display_name, state, request_count, last_request_at, last_error, created_at
		 FROM api_keys ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var out []keypool.Snapshot
	for rows.Next() {
		var snap keypool.Snapshot
		var state string
		var lastRequestAt *time.Time
		if err := rows.Scan(&snap.ID, &snap.Secret, &snap.DisplayName, &state,
			&snap.RequestCount, &lastRequestAt, &snap.LastError, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		snap.State = keypool.State(state)
		if lastRequestAt != nil {
			snap.LastRequestAt = *lastRequestAt
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credential rows: %w", err)
	}
	return out, nil
}

// FindBySecret returns the persisted key matching a secret, if any.
func (s *Store) FindBySecret(ctx context.Context, secret string) (*keypool.Snapshot, error) {
	creds, err := s.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	for i := range creds {
		if creds[i].Secret == secret {
			return &creds[i], nil
		}
	}
	return nil, nil
}
