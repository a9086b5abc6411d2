package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/internal/logger"
	"github.com/samvad-hq/samvad-post-fetcher/internal/posts"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/publishers"
)

// HandleProcessor fetches one handle, drops posts already published and
// publishes the rest.
type HandleProcessor struct {
	fetcher    PostFetcher
	publisher  EventPublisher
	deduper    Deduper
	log        logger.Logger
	providerID string
	limit      int
}

// NewHandleProcessor wires a processor. A nil deduper publishes every post.
func NewHandleProcessor(f PostFetcher, pub EventPublisher, d Deduper, log logger.Logger, providerID string, limit int) *HandleProcessor {
	return &HandleProcessor{
		fetcher:    f,
		publisher:  pub,
		deduper:    d,
		log:        logger.Ensure(log),
		providerID: providerID,
		limit:      limit,
	}
}

// Process runs one fetch-and-publish pass for handle.
func (p *HandleProcessor) Process(ctx context.Context, handle string) error {
	if p == nil || p.fetcher == nil {
		return fmt.Errorf("handle processor is not initialized")
	}

	fetched, err := p.fetcher.FetchPosts(ctx, handle, p.limit)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", handle, err)
	}

	fresh := p.filterNewPosts(ctx, handle, fetched)
	p.log.InfoObj("handle fetched", "watch_result", map[string]any{
		"handle":  handle,
		"fetched": len(fetched),
		"fresh":   len(fresh),
	})

	if len(fresh) == 0 || p.publisher == nil {
		return nil
	}

	var errs []error
	for _, post := range fresh {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		evt := publishers.NewEvent(p.providerID, handle, post)
		delivered, err := p.publisher.Publish(ctx, evt)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s post %s: %w", handle, evt.PostKey, err))
		}
		if delivered == 0 {
			continue
		}
		if err := p.markSeen(ctx, seenKey(handle, post)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// filterNewPosts keeps posts with no seen record. Lookup failures keep the post.
func (p *HandleProcessor) filterNewPosts(ctx context.Context, handle string, in []domain.Post) []domain.Post {
	if p.deduper == nil {
		return in
	}

	out := make([]domain.Post, 0, len(in))
	for _, post := range in {
		key := seenKey(handle, post)
		seen, err := p.deduper.Seen(ctx, key)
		if err != nil {
			p.log.WarnObj("seen lookup failed", "watch_store", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
		if seen {
			continue
		}
		out = append(out, post)
	}
	return out
}

func (p *HandleProcessor) markSeen(ctx context.Context, key string) error {
	if p.deduper == nil {
		return nil
	}
	if err := p.deduper.Mark(ctx, key); err != nil {
		return fmt.Errorf("mark %s: %w", key, err)
	}
	return nil
}

func seenKey(handle string, post domain.Post) string {
	return handle + ":" + posts.PostKey(post)
}
