package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
)

const (
	MockModeStructured = "structured"
	MockModeHTML       = "html"
)

// MockProvider fabricates deterministic posts without network access. It is
// used for local runs and for exercising the pipeline end to end.
//
// config.polls sets how many polls report RUNNING before the job settles
// (a negative value never settles). config.fail_status makes settled jobs
// end in that status instead of SUCCEEDED.
type MockProvider struct {
	id         string
	mode       string
	polls      int
	failStatus domain.JobStatus
	base       time.Time

	mu   sync.Mutex
	jobs map[string]*mockJob
}

type mockJob struct {
	target    Target
	remaining int
}

// NewMockProvider builds a mock provider from cfg.
func NewMockProvider(cfg Config) *MockProvider {
	id := cfg.ID
	if id == "" {
		id = TypeMock
	}
	var fail domain.JobStatus
	if s := strings.ToUpper(ConfigString(cfg, ConfigFailKey, "")); s != "" {
		fail = domain.JobStatus(s)
	}
	return &MockProvider{
		id:         id,
		mode:       strings.ToLower(ConfigString(cfg, ConfigModeKey, MockModeStructured)),
		polls:      ConfigInt(cfg, ConfigPollsKey, 1),
		failStatus: fail,
		base:       time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC),
		jobs:       make(map[string]*mockJob),
	}
}

func (m *MockProvider) ID() string { return m.id }

func (m *MockProvider) Submit(_ context.Context, target Target) (domain.Job, error) {
	if strings.TrimSpace(target.Handle) == "" {
		return domain.Job{}, domain.ProviderError("mock submit: empty handle", nil)
	}
	id := uuid.NewString()

	m.mu.Lock()
	m.jobs[id] = &mockJob{target: target, remaining: m.polls}
	m.mu.Unlock()

	return domain.Job{ID: id, Status: domain.JobSubmitted, ResultHandle: id}, nil
}

func (m *MockProvider) Poll(_ context.Context, jobID string) (domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ProviderError(fmt.Sprintf("mock: unknown job %q", jobID), nil)
	}
	if job.remaining != 0 {
		if job.remaining > 0 {
			job.remaining--
		}
		return domain.Job{ID: jobID, Status: domain.JobRunning, ResultHandle: jobID}, nil
	}
	if m.failStatus != "" {
		return domain.Job{ID: jobID, Status: m.failStatus, ResultHandle: jobID}, nil
	}
	return domain.Job{ID: jobID, Status: domain.JobSucceeded, ResultHandle: jobID}, nil
}

func (m *MockProvider) Retrieve(_ context.Context, job domain.Job, limit int) (domain.Result, error) {
	m.mu.Lock()
	mj, ok := m.jobs[job.ID]
	delete(m.jobs, job.ID)
	m.mu.Unlock()
	if !ok {
		return domain.Result{}, domain.ProviderError(fmt.Sprintf("mock: unknown job %q", job.ID), nil)
	}

	records := m.records(mj.target.Handle, limit)
	if m.mode == MockModeHTML {
		return domain.HTMLResult(mockPage(records)), nil
	}
	return domain.StructuredResult(records), nil
}

func (m *MockProvider) records(handle string, limit int) []domain.RawRecord {
	if limit < 0 {
		limit = 0
	}
	out := make([]domain.RawRecord, 0, limit)
	for i := 0; i < limit; i++ {
		ts := m.base.Add(-time.Duration(i) * time.Hour)
		out = append(out, domain.RawRecord{
			"id":        fmt.Sprintf("%s-%d", handle, i+1),
			"type":      "Image",
			"caption":   fmt.Sprintf("Update %d from @%s. More soon #%s #mock", i+1, handle, handle),
			"url":       fmt.Sprintf("https://www.instagram.com/p/%s%d/", handle, i+1),
			"timestamp": ts.Format(time.RFC3339),
		})
	}
	return out
}

func mockPage(records []domain.RawRecord) string {
	var b strings.Builder
	b.WriteString("<html><head><title>mock</title>")
	for _, rec := range records {
		doc := map[string]any{
			"@context":      "https://schema.org",
			"@type":         "SocialMediaPosting",
			"identifier":    rec["id"],
			"articleBody":   rec["caption"],
			"url":           rec["url"],
			"datePublished": rec["timestamp"],
		}
		raw, _ := json.Marshal(doc)
		b.WriteString(`<script type="application/ld+json">`)
		b.Write(raw)
		b.WriteString("</script>")
	}
	b.WriteString("</head><body></body></html>")
	return b.String()
}
