package payout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Marker remembers which (round, user) pairs have been paid.
type Marker interface {
	IsApplied(ctx context.Context, roundID uuid.UUID, userID string) (bool, error)
	MarkApplied(ctx context.Context, roundID uuid.UUID, userID string) error
}

// MemoryMarker is a process-local Marker.
type MemoryMarker struct {
	mu      sync.Mutex
	applied map[string]bool
}

func NewMemoryMarker() *MemoryMarker {
	return &MemoryMarker{applied: make(map[string]bool)}
}

func (m *MemoryMarker) IsApplied(_ context.Context, roundID uuid.UUID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[markerKey(roundID, userID)], nil
}

func (m *MemoryMarker) MarkApplied(_ context.Context, roundID uuid.UUID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[markerKey(roundID, userID)] = true
	return nil
}

// RedisMarker stores markers as keys that expire after ttl.
type RedisMarker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisMarker(rdb *redis.Client, ttl time.Duration) *RedisMarker {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisMarker{rdb: rdb, ttl: ttl}
}

func (m *RedisMarker) IsApplied(ctx context.Context, roundID uuid.UUID, userID string) (bool, error) {
	n, err := m.rdb.Exists(ctx, markerKey(roundID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read payout marker: %w", err)
	}
	return n > 0, nil
}

func (m *RedisMarker) MarkApplied(ctx context.Context, roundID uuid.UUID, userID string) error {
	if err := m.rdb.SetNX(ctx, markerKey(roundID, userID), time.Now().UTC().Format(time.RFC3339), m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set payout marker: %w", err)
	}
	return nil
}

func markerKey(roundID uuid.UUID, userID string) string {
	return "payout:applied:" + roundID.String() + ":" + userID
}
