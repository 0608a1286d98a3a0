package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/promox/core"
	"github.com/redis/go-redis/v9"
)

const (
	noncePrefix   = "promox:nonce:"
	revokedPrefix = "promox:revoked:"
)

// RedisStore is a Redis implementation of the nonce and revocation stores
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// PutNonce stores nonce under binding with expiration
func (s *RedisStore) PutNonce(ctx context.Context, binding, nonce string, ttl time.Duration) error {
	if err := s.client.Set(ctx, noncePrefix+binding, nonce, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}

	return nil
}

// TakeNonce atomically reads and deletes the nonce with GETDEL
func (s *RedisStore) TakeNonce(ctx context.Context, binding string) (string, error) {
	nonce, err := s.client.GetDel(ctx, noncePrefix+binding).Result()
	if errors.Is(err, redis.Nil) {
		return "", core.ErrNonceInvalidOrExpired
	}
	if err != nil {
		return "", fmt.Errorf("failed to take nonce: %w", err)
	}

	return nonce, nil
}

// RevokeSession marks a session as revoked in Redis
func (s *RedisStore) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, revokedPrefix+sessionID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	return nil
}

// IsSessionRevoked checks if a session is revoked in Redis
func (s *RedisStore) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	val, err := s.client.Exists(ctx, revokedPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}

	return val > 0, nil
}
