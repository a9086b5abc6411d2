package providers

import (
	"context"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/httpclient"
)

// Target is what a scrape job is asked to collect.
type Target struct {
	Handle  string
	URL     string
	Limit   int
	Options map[string]any
}

// Provider is an asynchronous scraping backend. Concrete implementations live
// in backend-specific files (e.g., apify.go).
//
// Submit fails with PROVIDER_ERROR when the job is rejected. Poll never
// reports a partial status: it returns a Job with a known status or an error.
// Retrieve returns either structured records or a raw HTML document.
type Provider interface {
	ID() string
	Submit(ctx context.Context, target Target) (domain.Job, error)
	Poll(ctx context.Context, jobID string) (domain.Job, error)
	Retrieve(ctx context.Context, job domain.Job, limit int) (domain.Result, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within providers.
type HTTPClient = httpclient.Client
