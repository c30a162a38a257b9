// Package dedup records which inbox messages already produced a draft so
// overlapping poll cycles and restarts never draft twice.
package dedup

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"support_server/core/domain"
)

const keyPrefix = "draft:processed:"

// Store is the processed-message record store. Claim is a compare-and-set:
// exactly one concurrent caller wins a given message ID. Release undoes a
// claim whose draft failed so a later cycle can retry.
type Store interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	Claim(ctx context.Context, record domain.ProcessedThreadRecord) (bool, error)
	Release(ctx context.Context, messageID string) error
}

// RedisStore keeps records in Redis. Records carry no TTL: a drafted message
// stays drafted.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists check failed: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Claim(ctx context.Context, record domain.ProcessedThreadRecord) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+record.MessageID, record.ThreadID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim failed: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, keyPrefix+messageID).Err(); err != nil {
		return fmt.Errorf("dedup release failed: %w", err)
	}
	return nil
}

// MemoryStore is the in-process fallback when no Redis address is configured.
// Records do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]string
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]string{}}
}

func (s *MemoryStore) IsProcessed(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[messageID]
	return ok, nil
}

func (s *MemoryStore) Claim(_ context.Context, record domain.ProcessedThreadRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.MessageID]; exists {
		return false, nil
	}
	s.records[record.MessageID] = record.ThreadID
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, messageID)
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
