package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/httpclient"
)

const defaultZyteBaseURL = "https://api.zyte.com"

// ZyteProvider renders the profile page through Zyte's extract API. The API is
// synchronous, so Submit completes the job and the page is held until Retrieve.
type ZyteProvider struct {
	id      string
	baseURL string
	headers map[string]string
	client  HTTPClient

	mu    sync.Mutex
	pages map[string]string
}

type zyteExtractResponse struct {
	URL         string `json:"url"`
	BrowserHTML string `json:"browserHtml"`
}

// NewZyteProvider builds a Zyte-backed provider.
func NewZyteProvider(cfg Config, client HTTPClient) (Provider, error) {
	if client == nil {
		return nil, errors.New("zyte provider requires an http client")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultZyteBaseURL
	}
	auth := base64.StdEncoding.EncodeToString([]byte(cfg.Token + ":"))
	return &ZyteProvider{
		id:      cfg.ID,
		baseURL: base,
		headers: withHeader(Headers(cfg), "Authorization", "Basic "+auth),
		client:  client,
		pages:   make(map[string]string),
	}, nil
}

func (p *ZyteProvider) ID() string { return p.id }

func (p *ZyteProvider) Submit(ctx context.Context, target Target) (domain.Job, error) {
	raw, err := call(ctx, p.client, p.id, "submit", httpclient.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/v1/extract",
		Headers: p.headers,
		Body:    map[string]any{"url": target.URL, "browserHtml": true},
	})
	if err != nil {
		return domain.Job{}, err
	}

	var resp zyteExtractResponse
	if err := decodeJSON(p.id, "submit", raw, &resp); err != nil {
		return domain.Job{}, err
	}
	if strings.TrimSpace(resp.BrowserHTML) == "" {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("%s submit: response has no browserHtml", p.id), nil)
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.pages[id] = resp.BrowserHTML
	p.mu.Unlock()

	return domain.Job{ID: id, Status: domain.JobSucceeded, ResultHandle: id}, nil
}

func (p *ZyteProvider) Poll(_ context.Context, jobID string) (domain.Job, error) {
	p.mu.Lock()
	_, ok := p.pages[jobID]
	p.mu.Unlock()
	if !ok {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("%s: unknown job %q", p.id, jobID), nil)
	}
	return domain.Job{ID: jobID, Status: domain.JobSucceeded, ResultHandle: jobID}, nil
}

// Retrieve hands back the rendered page once; the page is released afterwards.
func (p *ZyteProvider) Retrieve(_ context.Context, job domain.Job, _ int) (domain.Result, error) {
	key := job.ResultHandle
	if key == "" {
		key = job.ID
	}

	p.mu.Lock()
	doc, ok := p.pages[key]
	delete(p.pages, key)
	p.mu.Unlock()

	if !ok {
		return domain.Result{}, domain.ProviderError(fmt.Sprintf("%s: no page held for job %q", p.id, key), nil)
	}
	return domain.HTMLResult(doc), nil
}
