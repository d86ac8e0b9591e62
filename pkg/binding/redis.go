package binding

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists Entry records in a single Redis hash, one field
// per device-id, CBOR-encoded. Grounded on
// librescoot-bluetooth-service/pkg/redis/client.go's HSet/HGet-per-field
// wrapper idiom and on that repo's use of fxamacker/cbor to serialize
// structured messages before they leave the process.
type RedisStore struct {
	client *redis.Client
	ctx    context.Context
	key    string
}

// NewRedisStore connects to addr (Redis "host:port") and stores bindings
// under the given hash key.
func NewRedisStore(addr, password string, db int, key string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("binding: failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, ctx: ctx, key: key}, nil
}

// Save implements Store.
func (s *RedisStore) Save(e Entry) error {
	data, err := cbor.Marshal(e)
	if err != nil {
		return fmt.Errorf("binding: cbor marshal: %w", err)
	}
	field := fmt.Sprintf("%d", e.DeviceID)
	return s.client.HSet(s.ctx, s.key, field, data).Err()
}

// Load implements Store.
func (s *RedisStore) Load(deviceID uint32) (Entry, bool, error) {
	field := fmt.Sprintf("%d", deviceID)
	data, err := s.client.HGet(s.ctx, s.key, field).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("binding: redis hget: %w", err)
	}
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("binding: cbor unmarshal: %w", err)
	}
	return e, true, nil
}

// Close releases the underlying Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
