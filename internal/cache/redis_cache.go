package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// entryVersion is bumped whenever domain.Conversation changes shape, so
// lists written by an older build read as misses.
const entryVersion = 1

type entry struct {
	Version       int                   `json:"v"`
	Conversations []domain.Conversation `json:"conversations"`
}

type RedisConversationCache struct {
	client *redis.Client
	prefix string
}

// NewRedisConversationCache connects and pings Redis.
func NewRedisConversationCache(cfg config.RedisConfig, prefix string) (*RedisConversationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisConversationCacheFromClient(client, prefix), nil
}

// NewRedisConversationCacheFromClient wraps an existing client. Close
// closes it.
func NewRedisConversationCacheFromClient(client *redis.Client, prefix string) *RedisConversationCache {
	return &RedisConversationCache{client: client, prefix: prefix}
}

func (c *RedisConversationCache) key(userID string) string {
	return fmt.Sprintf("%s:conversations:%s", c.prefix, userID)
}

func (c *RedisConversationCache) Get(ctx context.Context, userID string) ([]domain.Conversation, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations from redis: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Version != entryVersion {
		return nil, ErrCacheMiss
	}
	return e.Conversations, nil
}

func (c *RedisConversationCache) Set(ctx context.Context, userID string, convs []domain.Conversation, ttl time.Duration) error {
	data, err := json.Marshal(entry{Version: entryVersion, Conversations: convs})
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return c.client.Set(ctx, c.key(userID), data, ttl).Err()
}

// Invalidate drops the lists of every given user in one round trip.
func (c *RedisConversationCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.key(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate conversations: %w", err)
	}
	return nil
}

func (c *RedisConversationCache) Close() error {
	return c.client.Close()
}
