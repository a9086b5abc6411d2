package publishers

import (
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/internal/posts"
)

// Event represents the payload published downstream for one newly seen post.
type Event struct {
	EventID     string      `json:"event_id"`
	Handle      string      `json:"handle"`
	ProviderID  string      `json:"provider_id"`
	PostKey     string      `json:"post_key"`
	Post        domain.Post `json:"post"`
	CollectedAt time.Time   `json:"collected_at"`
}

// NewEvent constructs an Event for the given handle + post.
func NewEvent(providerID, handle string, post domain.Post) Event {
	return Event{
		EventID:     uuid.NewString(),
		Handle:      handle,
		ProviderID:  providerID,
		PostKey:     posts.PostKey(post),
		Post:        post,
		CollectedAt: time.Now().UTC(),
	}
}

// Attributes returns the routing attributes attached to queue/topic messages.
// Empty values are omitted.
func (e Event) Attributes() map[string]string {
	attrs := make(map[string]string, 4)
	for k, v := range map[string]string{
		"provider_id": e.ProviderID,
		"handle":      e.Handle,
		"post_key":    e.PostKey,
		"event_id":    e.EventID,
	} {
		if v != "" {
			attrs[k] = v
		}
	}
	return attrs
}
