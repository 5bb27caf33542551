package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

func newTestCache(t *testing.T) (*RedisConversationCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisConversationCache(config.RedisConfig{Address: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestRedisConversationCache_RoundTripAndExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	preview := "Hola"
	require.NoError(t, c.Set(ctx, "u1", []domain.Conversation{{
		ID:                 "c1",
		ParticipantA:       "u1",
		ParticipantB:       "u2",
		LastMessagePreview: &preview,
		UnreadCount:        2,
		Counterpart:        &domain.UserSummary{ID: "u2", DisplayName: "Bruno"},
	}}, time.Minute))
	assert.True(t, mr.Exists("test:conversations:u1"))

	convs, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "Hola", *convs[0].LastMessagePreview)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "Bruno", convs[0].Counterpart.DisplayName)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisConversationCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "u1", []domain.Conversation{}, time.Minute))
	require.NoError(t, c.Set(ctx, "u2", []domain.Conversation{}, time.Minute))
	require.NoError(t, c.Set(ctx, "u3", []domain.Conversation{}, time.Minute))

	require.NoError(t, c.Invalidate(ctx, "u1", "u2"))
	require.NoError(t, c.Invalidate(ctx))

	_, err := c.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "u2")
	assert.ErrorIs(t, err, ErrCacheMiss)
	convs, err := c.Get(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestRedisConversationCache_ForeignEntriesAreMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisConversationCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	defer c.Close()

	require.NoError(t, mr.Set("test:conversations:old", `{"v":0,"conversations":[]}`))
	require.NoError(t, mr.Set("test:conversations:junk", `not json`))

	_, err := c.Get(context.Background(), "old")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(context.Background(), "junk")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisConversationCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Get(context.Background(), "u1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNewRedisConversationCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisConversationCache(config.RedisConfig{Address: addr}, "test")
	assert.Error(t, err)
}
