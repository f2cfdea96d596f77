package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const (
	cachePrefix     = "ramp:idempotency:"
	defaultWaitTick = 50 * time.Millisecond
)

// Record is a finished response that a retried confirm or transfer request
// is answered with.
type Record struct {
	Key         string `json:"key"`
	RequestHash string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
	ServedBy    string `json:"-"`
}

// Entry is the durable state of one key.
type Entry struct {
	Record
	InProgress bool
}

// Backend is the durable side of the store.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error)
	Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Entry, error)
	// Release drops an unfinished reservation so the key can be retried.
	Release(ctx context.Context, key, requestHash string) error
}

// Store fronts a durable backend with an optional redis response cache.
// Only finished records are cached; reservations live in the backend.
type Store struct {
	redis    redis.Cmdable
	backend  Backend
	ttl      time.Duration
	waitTick time.Duration
}

func NewStore(rdb redis.Cmdable, backend Backend, ttl time.Duration) *Store {
	return &Store{redis: rdb, backend: backend, ttl: ttl, waitTick: defaultWaitTick}
}

// Lookup returns the finished record for key. ErrInProgress means another
// request holds the reservation.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if rec, ok := s.cached(ctx, key); ok {
		if rec.RequestHash != requestHash {
			return nil, ErrHashMismatch
		}
		return rec, nil
	}

	e, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	switch {
	case e.RequestHash != requestHash:
		return nil, ErrHashMismatch
	case e.InProgress:
		return nil, ErrInProgress
	}
	s.cache(ctx, e.Record)
	rec := e.Record
	return &rec, nil
}

func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	return s.backend.Reserve(ctx, key, requestHash, method, path)
}

func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	e, err := s.backend.Finalize(ctx, key, requestHash, status, body, contentType)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, e.Record)
	rec := e.Record
	return &rec, nil
}

// Release gives the key back after an attempt that should not be replayed.
func (s *Store) Release(ctx context.Context, key, requestHash string) error {
	return s.backend.Release(ctx, key, requestHash)
}

// WaitForCompletion blocks until the holder of key finalizes or releases it.
// A released key comes back as ErrNotFound.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(s.waitTick)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Store) cached(ctx context.Context, key string) (*Record, bool) {
	if s.redis == nil {
		return nil, false
	}
	raw, err := s.redis.Get(ctx, cachePrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("idempotency cache read failed", zap.Error(err))
		}
		return nil, false
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false
	}
	rec.ServedBy = "redis"
	return &rec, true
}

func (s *Store) cache(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		zap.L().Warn("idempotency cache encode failed", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, cachePrefix+rec.Key, payload, s.ttl).Err(); err != nil {
		zap.L().Warn("idempotency cache write failed", zap.Error(err))
	}
}
