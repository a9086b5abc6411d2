package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/httpclient"
)

const (
	defaultApifyBaseURL = "https://api.apify.com"
	defaultApifyActor   = "apify/instagram-scraper"
)

// ApifyProvider runs an Apify actor and reads its default dataset.
type ApifyProvider struct {
	id          string
	baseURL     string
	token       string
	actorID     string
	resultsType string
	headers     map[string]string
	client      HTTPClient
}

type apifyRunEnvelope struct {
	Data apifyRun `json:"data"`
}

type apifyRun struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// NewApifyProvider builds an Apify-backed provider.
func NewApifyProvider(cfg Config, client HTTPClient) (Provider, error) {
	if client == nil {
		return nil, errors.New("apify provider requires an http client")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultApifyBaseURL
	}
	return &ApifyProvider{
		id:          cfg.ID,
		baseURL:     base,
		token:       cfg.Token,
		actorID:     ConfigString(cfg, ConfigActorIDKey, defaultApifyActor),
		resultsType: ConfigString(cfg, ConfigResultsTypeKey, "posts"),
		headers:     withHeader(Headers(cfg), "Authorization", "Bearer "+cfg.Token),
		client:      client,
	}, nil
}

func (p *ApifyProvider) ID() string { return p.id }

// Submit starts an actor run for the target profile.
func (p *ApifyProvider) Submit(ctx context.Context, target Target) (domain.Job, error) {
	// Actor ids use "~" in place of "/" inside API paths.
	actor := strings.ReplaceAll(p.actorID, "/", "~")
	body := map[string]any{
		"directUrls":    []string{target.URL},
		"resultsType":   p.resultsType,
		"resultsLimit":  target.Limit,
		"addParentData": false,
	}
	for k, v := range target.Options {
		body[k] = v
	}

	raw, err := call(ctx, p.client, p.id, "submit", httpclient.Request{
		Method:  http.MethodPost,
		URL:     fmt.Sprintf("%s/v2/acts/%s/runs", p.baseURL, url.PathEscape(actor)),
		Headers: p.headers,
		Body:    body,
	})
	if err != nil {
		return domain.Job{}, err
	}
	return p.decodeRun("submit", raw)
}

// Poll reads the current run state.
func (p *ApifyProvider) Poll(ctx context.Context, jobID string) (domain.Job, error) {
	raw, err := call(ctx, p.client, p.id, "poll", httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/v2/actor-runs/%s", p.baseURL, url.PathEscape(jobID)),
		Headers: p.headers,
	})
	if err != nil {
		return domain.Job{}, err
	}
	return p.decodeRun("poll", raw)
}

// Retrieve fetches up to limit items from the run's dataset.
func (p *ApifyProvider) Retrieve(ctx context.Context, job domain.Job, limit int) (domain.Result, error) {
	if job.ResultHandle == "" {
		return domain.Result{}, domain.ProviderError(fmt.Sprintf("%s run %s has no dataset", p.id, job.ID), nil)
	}
	raw, err := call(ctx, p.client, p.id, "retrieve", httpclient.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("%s/v2/datasets/%s/items", p.baseURL, url.PathEscape(job.ResultHandle)),
		Headers: p.headers,
		Query: map[string]string{
			"clean":  "true",
			"format": "json",
			"limit":  strconv.Itoa(limit),
		},
	})
	if err != nil {
		return domain.Result{}, err
	}
	records, err := decodeRecords(p.id, "retrieve", raw)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.StructuredResult(records), nil
}

func (p *ApifyProvider) decodeRun(op string, raw []byte) (domain.Job, error) {
	var env apifyRunEnvelope
	if err := decodeJSON(p.id, op, raw, &env); err != nil {
		return domain.Job{}, err
	}
	if env.Data.ID == "" {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("%s %s: response has no run id", p.id, op), nil)
	}
	status, err := apifyStatus(env.Data.Status)
	if err != nil {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("%s %s", p.id, op), err)
	}
	return domain.Job{ID: env.Data.ID, Status: status, ResultHandle: env.Data.DefaultDatasetID}, nil
}

func apifyStatus(s string) (domain.JobStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "READY", "RUNNING":
		return domain.JobRunning, nil
	case "SUCCEEDED":
		return domain.JobSucceeded, nil
	case "FAILED":
		return domain.JobFailed, nil
	case "ABORTING", "ABORTED":
		return domain.JobAborted, nil
	case "TIMING-OUT", "TIMED-OUT":
		return domain.JobTimedOut, nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}
