package domain

import (
	"context"
	"time"
)

// NewItem описывает запись, которую создаёт пользователь.
type NewItem struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Kind     ItemKind `json:"type"`
	MediaURL string   `json:"media_url,omitempty"`
	MosqueID string   `json:"mosque_id,omitempty"`
}

// FeedAPI — удалённый REST API платформы.
type FeedAPI interface {
	// FetchFeed возвращает «сырые» записи ленты для контекста подписки.
	FetchFeed(ctx context.Context, feedContext string) ([]map[string]any, error)
	Like(ctx context.Context, itemID int64, idempotencyKey string) error
	Comment(ctx context.Context, itemID int64, text, idempotencyKey string) error
	UpdateStatus(ctx context.Context, itemID int64, status string) error
	Delete(ctx context.Context, itemID int64) error
	Create(ctx context.Context, item NewItem, idempotencyKey string) (map[string]any, error)
}

// ReferenceAPI возвращает справочники календаря.
type ReferenceAPI interface {
	ListSpeakers(ctx context.Context) ([]Speaker, error)
	ListKitabs(ctx context.Context) ([]Kitab, error)
	ListMasjids(ctx context.Context) ([]Masjid, error)
}

// FeedMirror сохраняет копию живых лент для тёплого старта.
type FeedMirror interface {
	UpsertFeedItems(ctx context.Context, feedContext string, items []FeedItem) error
	DeleteFeedItems(ctx context.Context, feedContext string, ids []int64) error
	ListFeedItems(ctx context.Context, feedContext string) ([]FeedItem, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
