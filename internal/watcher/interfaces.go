package watcher

import (
	"context"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/publishers"
)

// PostFetcher returns the latest posts for a handle.
type PostFetcher interface {
	FetchPosts(ctx context.Context, handle string, limit int) ([]domain.Post, error)
}

// EventPublisher publishes events downstream and reports how many sinks accepted them.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Deduper remembers which posts were already published.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}
