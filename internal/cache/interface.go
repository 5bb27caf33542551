package cache

import (
	"context"
	"time"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

// ConversationCache caches per-user conversation lists. Writers
// invalidate every participant they touch.
type ConversationCache interface {
	// Get returns ErrCacheMiss when nothing usable is stored.
	Get(ctx context.Context, userID string) ([]domain.Conversation, error)
	Set(ctx context.Context, userID string, convs []domain.Conversation, ttl time.Duration) error
	Invalidate(ctx context.Context, userIDs ...string) error
	Close() error
}
