package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend keeps keys in the idempotency_keys table.
type PostgresBackend struct {
	db *pgxpool.Pool
}

func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Get(ctx context.Context, key string) (*Entry, error) {
	query := `
		SELECT idempotency_key, request_hash, in_progress, response_status, COALESCE(response_body, ''::bytea), content_type
		FROM idempotency_keys
		WHERE idempotency_key = $1
	`
	var e Entry
	var status int32
	err := b.db.QueryRow(ctx, query, key).Scan(&e.Key, &e.RequestHash, &e.InProgress, &status, &e.Body, &e.ContentType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	e.Status = int(status)
	e.ServedBy = "postgres"
	return &e, nil
}

func (b *PostgresBackend) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (idempotency_key) DO NOTHING
	`
	tag, err := b.db.Exec(ctx, query, key, requestHash, method, path)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (b *PostgresBackend) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Entry, error) {
	query := `
		UPDATE idempotency_keys
		SET in_progress = FALSE, response_status = $1, response_body = $2, content_type = $3, updated_at = NOW()
		WHERE idempotency_key = $4 AND request_hash = $5
	`
	tag, err := b.db.Exec(ctx, query, int32(status), body, contentType, key, requestHash)
	if err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, ErrNotFound
	}
	return &Entry{Record: Record{
		Key:         key,
		RequestHash: requestHash,
		Status:      status,
		Body:        body,
		ContentType: contentType,
		ServedBy:    "postgres",
	}}, nil
}

func (b *PostgresBackend) Release(ctx context.Context, key, requestHash string) error {
	query := `
		DELETE FROM idempotency_keys
		WHERE idempotency_key = $1 AND request_hash = $2 AND in_progress
	`
	if _, err := b.db.Exec(ctx, query, key, requestHash); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// MemoryBackend is used when no database is configured, and in tests.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]Entry)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryBackend) Reserve(_ context.Context, key, requestHash, _, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = Entry{Record: Record{Key: key, RequestHash: requestHash, ServedBy: "memory"}, InProgress: true}
	return true, nil
}

func (m *MemoryBackend) Finalize(_ context.Context, key, requestHash string, status int, body []byte, contentType string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok || e.RequestHash != requestHash {
		return nil, ErrNotFound
	}
	e.InProgress = false
	e.Status = status
	e.Body = append([]byte(nil), body...)
	e.ContentType = contentType
	m.data[key] = e
	return &e, nil
}

func (m *MemoryBackend) Release(_ context.Context, key, requestHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[key]; ok && e.InProgress && e.RequestHash == requestHash {
		delete(m.data, key)
	}
	return nil
}
