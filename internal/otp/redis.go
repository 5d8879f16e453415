package otp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps outstanding codes in Redis so multiple instances share
// them. Keys carry a TTL well past the validity window; expiry within the
// window is still decided by the caller, the TTL only bounds how long an
// abandoned entry can linger.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. window is the code validity
// window; entries live for the window plus an hour of slack.
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    window + time.Hour,
	}
}

func key(identity string) string {
	return fmt.Sprintf("otp:%s", identity)
}

// Put stores code for identity, overwriting any outstanding code
func (s *RedisStore) Put(ctx context.Context, identity string, code Code) error {
	data, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("failed to marshal code: %w", err)
	}
	return s.client.Set(ctx, key(identity), data, s.ttl).Err()
}

// Get returns the outstanding code for identity, if any
func (s *RedisStore) Get(ctx context.Context, identity string) (Code, bool, error) {
	data, err := s.client.Get(ctx, key(identity)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Code{}, false, nil
		}
		return Code{}, false, err
	}

	var code Code
	if err := json.Unmarshal(data, &code); err != nil {
		return Code{}, false, fmt.Errorf("failed to unmarshal code: %w", err)
	}
	return code, true, nil
}

// Delete removes the outstanding code for identity
func (s *RedisStore) Delete(ctx context.Context, identity string) (bool, error) {
	deleted, err := s.client.Del(ctx, key(identity)).Result()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}
