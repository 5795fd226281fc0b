package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// AccessCodeStore implements ports.AccessCodeStore using Redis.
// Redemption is GETDEL, so a code pays for exactly one onboarding even
// when two callers race on it.
type AccessCodeStore struct {
	client *goredis.Client
	prefix string
}

// NewAccessCodeStore creates a new Redis-backed access code store.
func NewAccessCodeStore(client *goredis.Client) *AccessCodeStore {
	return &AccessCodeStore{
		client: client,
		prefix: "access_code:",
	}
}

// Redeem atomically consumes the code. Returns false when the code does
// not exist or was already redeemed.
func (s *AccessCodeStore) Redeem(ctx context.Context, code string) (bool, error) {
	_, err := s.client.GetDel(ctx, s.prefix+code).Result()
	if err != nil {
		if err == goredis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis access code redeem: %w", err)
	}
	return true, nil
}

// Seed provisions a code. Zero ttl means the code never expires.
func (s *AccessCodeStore) Seed(ctx context.Context, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+code, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis access code seed: %w", err)
	}
	return nil
}
