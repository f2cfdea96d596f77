package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const challengeKeyPrefix = "ramp:auth:challenge"

// RedisChallengeStore shares challenges across replicas.
type RedisChallengeStore struct {
	redis redis.Cmdable
}

func NewRedisChallengeStore(redis redis.Cmdable) *RedisChallengeStore {
	return &RedisChallengeStore{redis: redis}
}

func (s *RedisChallengeStore) Put(ctx context.Context, wallet, message string, ttl time.Duration) error {
	return s.redis.Set(ctx, challengeKey(wallet), message, ttl).Err()
}

func (s *RedisChallengeStore) Take(ctx context.Context, wallet string) (string, error) {
	message, err := s.redis.GetDel(ctx, challengeKey(wallet)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoChallenge
	}
	if err != nil {
		return "", fmt.Errorf("take challenge: %w", err)
	}
	return message, nil
}

func challengeKey(wallet string) string {
	return fmt.Sprintf("%s:%s", challengeKeyPrefix, strings.ToLower(wallet))
}

type memoryChallenge struct {
	message string
	expires time.Time
}

// MemoryChallengeStore is the single-process store.
type MemoryChallengeStore struct {
	mu   sync.Mutex
	data map[string]memoryChallenge
	now  func() time.Time
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{data: make(map[string]memoryChallenge), now: time.Now}
}

func (s *MemoryChallengeStore) Put(_ context.Context, wallet, message string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[strings.ToLower(wallet)] = memoryChallenge{message: message, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryChallengeStore) Take(_ context.Context, wallet string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(wallet)
	c, ok := s.data[key]
	delete(s.data, key)
	if !ok || s.now().After(c.expires) {
		return "", ErrNoChallenge
	}
	return c.message, nil
}
