package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRecordStore implements RenewalRecordStore on Redis. DEL's
// removed-key count gives the same first-deleter-wins semantics as the
// SQLite row delete.
//
// Records carry no Redis TTL: a guest renewal credential is effectively
// unbounded, so record lifetime is governed entirely by token expiry and
// explicit revocation.
type RedisRecordStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRecordStore creates a Redis-backed renewal record store.
func NewRedisRecordStore(client *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{
		client: client,
		prefix: "renewal:",
	}
}

func (s *RedisRecordStore) key(id string) string {
	return s.prefix + id
}

// Create inserts a fresh record and returns its id.
func (s *RedisRecordStore) Create(ctx context.Context) (string, error) {
	id := "rec-" + uuid.NewString()

	if err := s.client.Set(ctx, s.key(id), 1, 0).Err(); err != nil {
		return "", fmt.Errorf("%w: creating renewal record: %w", ErrStorageUnavailable, err)
	}

	return id, nil
}

// Exists reports whether the record is still live.
func (s *RedisRecordStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: checking renewal record: %w", ErrStorageUnavailable, err)
	}
	return n > 0, nil
}

// Delete removes the record. Redis DEL reports how many keys it removed;
// zero means the record was already consumed or never existed.
func (s *RedisRecordStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: deleting renewal record: %w", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
