package publishers

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DeliveryError records one publisher rejecting one post.
type DeliveryError struct {
	PublisherID string
	Type        string
	Handle      string
	PostKey     string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s publisher[%s] rejected %s post %s: %v", e.Type, e.PublisherID, e.Handle, e.PostKey, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// handleScoped is implemented by publishers that only take some handles.
type handleScoped interface {
	Accepts(handle string) bool
}

// Fanout delivers each post event to every publisher subscribed to its handle.
type Fanout struct {
	publishers []Publisher
	log        Logger
}

// NewFanout skips nil publishers.
func NewFanout(pubs []Publisher, log Logger) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			cp = append(cp, p)
		}
	}
	return &Fanout{publishers: cp, log: ensureLogger(log)}
}

// Publish sends evt to the subscribed publishers concurrently and returns how
// many accepted it. When no publisher subscribes to evt.Handle the skipped
// count is returned instead so the post is not retried on every pass.
// Failures come back joined as *DeliveryError values.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.publishers) == 0 {
		return 0, nil
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		errs      []error
		delivered int
		skipped   int
	)
	for _, p := range f.publishers {
		if s, ok := p.(handleScoped); ok && !s.Accepts(evt.Handle) {
			skipped++
			continue
		}

		wg.Add(1)
		go func(p Publisher) {
			defer wg.Done()
			err := p.Publish(ctx, evt)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				delivered++
				return
			}
			errs = append(errs, &DeliveryError{
				PublisherID: p.ID(),
				Type:        p.Type(),
				Handle:      evt.Handle,
				PostKey:     evt.PostKey,
				Err:         err,
			})
			f.log.WarnObj("post delivery failed", "fanout_error", deliveryFields(p.ID(), evt, err))
		}(p)
	}
	wg.Wait()

	f.log.DebugObj("post fanned out", "fanout_result", map[string]any{
		"event_id":  evt.EventID,
		"handle":    evt.Handle,
		"post_key":  evt.PostKey,
		"delivered": delivered,
		"skipped":   skipped,
		"failed":    len(errs),
	})
	if delivered == 0 && len(errs) == 0 {
		return skipped, nil
	}
	return delivered, errors.Join(errs...)
}

// Size returns the number of active publishers.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}

// scopedPublisher limits a publisher to a set of handles.
type scopedPublisher struct {
	Publisher
	handles map[string]struct{}
}

func (s scopedPublisher) Accepts(handle string) bool {
	_, ok := s.handles[normalizeHandle(handle)]
	return ok
}

func (s scopedPublisher) Close() error {
	if c, ok := s.Publisher.(Closer); ok {
		return c.Close()
	}
	return nil
}

// scope wraps pub when handles is non-empty.
func scope(pub Publisher, handles []string) Publisher {
	if len(handles) == 0 {
		return pub
	}
	set := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		set[normalizeHandle(h)] = struct{}{}
	}
	return scopedPublisher{Publisher: pub, handles: set}
}
