package httpclient

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// PacedClient spaces out calls made through the wrapped client so a single
// upstream sees at most one request per interval.
type PacedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewPacedClient wraps next; a non-positive every disables pacing.
func NewPacedClient(next Client, every time.Duration) Client {
	if every <= 0 || next == nil {
		return next
	}
	return &PacedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

func (p *PacedClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Get(ctx, url, headers)
}

func (p *PacedClient) Do(ctx context.Context, req Request) (Response, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.next.Do(ctx, req)
}

func (p *PacedClient) wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("wait for request slot: %w", ctxErr)
		}
		return fmt.Errorf("wait for request slot: %w", context.DeadlineExceeded)
	}
	return nil
}
