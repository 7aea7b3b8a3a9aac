package resultcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/KostasNoreika/mcp-debate-consensus-sub000/internal/config"
)

// RedisMirror optionally mirrors cache entries into Redis so a fresh
// process can warm its in-memory cache, or so multiple coordinator
// instances can share results.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

// NewRedisMirror builds a mirror from RedisConfig. It does not
// eagerly connect; failures surface on first Set/Get call.
func NewRedisMirror(cfg config.RedisConfig) *RedisMirror {
	return &RedisMirror{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: "consensusd:resultcache:",
	}
}

// Ping verifies connectivity.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Set stores entry under key with the given TTL.
func (m *RedisMirror) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return m.client.Set(ctx, m.prefix+key, data, ttl).Err()
}

// Get retrieves and deserializes an entry; (Entry{}, false, nil) on miss.
func (m *RedisMirror) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := m.client.Get(ctx, m.prefix+key).Bytes()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Delete removes key from the mirror.
func (m *RedisMirror) Delete(ctx context.Context, key string) error {
	return m.client.Del(ctx, m.prefix+key).Err()
}

// Close releases the underlying connection pool.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
