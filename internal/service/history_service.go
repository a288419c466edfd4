package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ymliu/convo/internal/cache"
	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/pkg/log"
)

// History pagination bounds.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

type historyServiceImpl struct {
	repo     repository.MessageRepository
	cache    cache.HistoryCache
	cacheTTL time.Duration
	sf       singleflight.Group
}

// NewHistoryService creates a history service with a read-through page
// cache.
func NewHistoryService(repo repository.MessageRepository, pageCache cache.HistoryCache, cacheTTL time.Duration) HistoryService {
	return &historyServiceImpl{
		repo:     repo,
		cache:    pageCache,
		cacheTTL: cacheTTL,
	}
}

// FetchPage returns a page of room history, newest first. skip below zero
// is treated as zero; limit defaults to DefaultHistoryLimit and is clamped
// to MaxHistoryLimit.
func (s *historyServiceImpl) FetchPage(ctx context.Context, roomID uint, skip, limit int) ([]domain.MessageResponse, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	key := s.cache.BuildKey(roomID, skip, limit)

	// Collapse concurrent fills for the same page.
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, roomID, skip, limit, key)
	})
	if err != nil {
		return nil, err
	}

	page, ok := result.(*cache.HistoryPage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}

	out := make([]domain.MessageResponse, len(page.Messages))
	for i := range page.Messages {
		out[i] = page.Messages[i].ToResponse()
	}
	return out, nil
}

func (s *historyServiceImpl) fetchWithCache(ctx context.Context, roomID uint, skip, limit int, key string) (*cache.HistoryPage, error) {
	// The latest page changes on every new message; serve it straight from
	// the store so fresh messages are never hidden behind a cached page.
	if skip == 0 {
		messages, err := s.repo.FetchPage(ctx, roomID, skip, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history page: %w", err)
		}
		return &cache.HistoryPage{Messages: messages}, nil
	}

	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache get error")
	}

	messages, err := s.repo.FetchPage(ctx, roomID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history page: %w", err)
	}

	page := &cache.HistoryPage{Messages: messages}

	// Fill asynchronously so a slow cache never delays the response.
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, page, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("history cache set error")
		}
	}()

	return page, nil
}
