package idempotency

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const hashGuardPrefix = "ramp:txhash"

// RedisHashGuard claims a transfer's hash submission slot with SETNX, so a
// hash reaches the backend once even across replicas.
type RedisHashGuard struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewRedisHashGuard(redis redis.Cmdable, ttl time.Duration) *RedisHashGuard {
	return &RedisHashGuard{redis: redis, ttl: ttl}
}

// Claim reports whether the caller won the right to submit for transferID.
func (g *RedisHashGuard) Claim(ctx context.Context, transferID, txHash string) (bool, error) {
	ok, err := g.redis.SetNX(ctx, hashGuardKey(transferID), strings.ToLower(txHash), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim tx hash: %w", err)
	}
	return ok, nil
}

// MemoryHashGuard is the single-process guard.
type MemoryHashGuard struct {
	mu      sync.Mutex
	claimed map[string]string
}

func NewMemoryHashGuard() *MemoryHashGuard {
	return &MemoryHashGuard{claimed: make(map[string]string)}
}

func (g *MemoryHashGuard) Claim(_ context.Context, transferID, txHash string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.claimed[transferID]; ok {
		return false, nil
	}
	g.claimed[transferID] = strings.ToLower(txHash)
	return true, nil
}

func hashGuardKey(transferID string) string {
	return fmt.Sprintf("%s:%s", hashGuardPrefix, transferID)
}
