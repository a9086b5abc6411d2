package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/httpclient"
)

const defaultBrightDataBaseURL = "https://api.brightdata.com"

// BrightDataProvider triggers a dataset collection and downloads its snapshot.
type BrightDataProvider struct {
	id        string
	baseURL   string
	datasetID string
	headers   map[string]string
	client    HTTPClient
}

// NewBrightDataProvider builds a Bright Data-backed provider. config.dataset_id is required.
func NewBrightDataProvider(cfg Config, client HTTPClient) (Provider, error) {
	if client == nil {
		return nil, errors.New("brightdata provider requires an http client")
	}
	dataset := ConfigString(cfg, ConfigDatasetIDKey, "")
	if dataset == "" {
		return nil, fmt.Errorf("provider %q: config.%s is required", cfg.ID, ConfigDatasetIDKey)
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBrightDataBaseURL
	}
	return &BrightDataProvider{
		id:        cfg.ID,
		baseURL:   base,
		datasetID: dataset,
		headers:   withHeader(Headers(cfg), "Authorization", "Bearer "+cfg.Token),
		client:    client,
	}, nil
}

func (p *BrightDataProvider) ID() string { return p.id }

func (p *BrightDataProvider) Submit(ctx context.Context, target Target) (domain.Job, error) {
	raw, err := call(ctx, p.client, p.id, "submit", httpclient.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/datasets/v3/trigger",
		Headers: p.headers,
		Query: map[string]string{
			"dataset_id":     p.datasetID,
			"include_errors": "true",
		},
		Body: []map[string]any{{"url": target.URL, "num_of_posts": target.Limit}},
	})
	if err != nil {
		return domain.Job{}, err
	}

	var resp struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := decodeJSON(p.id, "submit", raw, &resp); err != nil {
		return domain.Job{}, err
	}
	if resp.SnapshotID == "" {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("%s submit: response has no snapshot_id", p.id), nil)
	}
	return domain.Job{ID: resp.SnapshotID, Status: domain.JobSubmitted, ResultHandle: resp.SnapshotID}, nil
}

func (p *BrightDataProvider) Poll(ctx context.Context, jobID string) (domain.Job, error) {
	raw, err := call(ctx, p.client, p.id, "poll", httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/datasets/v3/progress/%s", p.baseURL, url.PathEscape(jobID)),
		Headers: p.headers,
	})
	if err != nil {
		return domain.Job{}, err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(p.id, "poll", raw, &resp); err != nil {
		return domain.Job{}, err
	}
	status, err := brightDataStatus(resp.Status)
	if err != nil {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("%s poll", p.id), err)
	}
	return domain.Job{ID: jobID, Status: status, ResultHandle: jobID}, nil
}

func (p *BrightDataProvider) Retrieve(ctx context.Context, job domain.Job, limit int) (domain.Result, error) {
	id := job.ResultHandle
	if id == "" {
		id = job.ID
	}
	raw, err := call(ctx, p.client, p.id, "retrieve", httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/datasets/v3/snapshot/%s", p.baseURL, url.PathEscape(id)),
		Headers: p.headers,
		Query:   map[string]string{"format": "json"},
	})
	if err != nil {
		return domain.Result{}, err
	}
	records, err := decodeRecords(p.id, "retrieve", raw)
	if err != nil {
		return domain.Result{}, err
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return domain.StructuredResult(records), nil
}

func brightDataStatus(s string) (domain.JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starting", "running", "building", "collecting", "digesting":
		return domain.JobRunning, nil
	case "ready":
		return domain.JobSucceeded, nil
	case "failed":
		return domain.JobFailed, nil
	default:
		return "", fmt.Errorf("unknown snapshot status %q", s)
	}
}
