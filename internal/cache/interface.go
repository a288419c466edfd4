package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ymliu/convo/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryPage is the cached form of one history page.
type HistoryPage struct {
	Messages []domain.Message `json:"messages"`
}

// HistoryCache caches history pages keyed by (room, skip, limit). The
// latest page (skip zero) is never cached; entries expire by TTL only.
type HistoryCache interface {
	BuildKey(roomID uint, skip, limit int) string
	Get(ctx context.Context, key string) (*HistoryPage, error)
	Set(ctx context.Context, key string, page *HistoryPage, ttl time.Duration) error
	Close() error
}
