package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/cache"
	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/internal/ratelimit"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/providers"
)

type fakeProvider struct {
	mu sync.Mutex

	submitErrs   []error
	submitStatus domain.JobStatus
	statuses     []domain.JobStatus
	result       domain.Result
	retrieveErr  error
	retrieveWait bool

	// pollSleep and retrieveSleep block without watching ctx.
	pollSleep     time.Duration
	retrieveSleep time.Duration

	submits   int
	polls     int
	retrieves int
	target    providers.Target
}

func (f *fakeProvider) ID() string { return "fake" }

func (f *fakeProvider) Submit(_ context.Context, target providers.Target) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.target = target
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		if err != nil {
			return domain.Job{}, err
		}
	}
	status := f.submitStatus
	if status == "" {
		status = domain.JobSubmitted
	}
	return domain.Job{ID: "job-1", Status: status, ResultHandle: "ds-1"}, nil
}

func (f *fakeProvider) Poll(_ context.Context, jobID string) (domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollSleep > 0 {
		f.mu.Unlock()
		time.Sleep(f.pollSleep)
		f.mu.Lock()
	}
	status := domain.JobRunning
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return domain.Job{ID: jobID, Status: status}, nil
}

func (f *fakeProvider) Retrieve(ctx context.Context, job domain.Job, _ int) (domain.Result, error) {
	f.mu.Lock()
	f.retrieves++
	wait := f.retrieveWait
	sleep := f.retrieveSleep
	f.mu.Unlock()
	if sleep > 0 {
		time.Sleep(sleep)
	}
	if job.ResultHandle != "ds-1" {
		return domain.Result{}, fmt.Errorf("result handle lost: %+v", job)
	}
	if wait {
		<-ctx.Done()
		return domain.Result{}, ctx.Err()
	}
	return f.result, f.retrieveErr
}

func records(n int) []domain.RawRecord {
	out := make([]domain.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.RawRecord{
			"id":        fmt.Sprintf("p%d", i),
			"caption":   fmt.Sprintf("Launch %d. Countdown #space", i),
			"timestamp": float64(1700000000 + i),
		})
	}
	return out
}

func fastOptions() Options {
	return Options{
		PollInterval:     5 * time.Millisecond,
		PollBudget:       200 * time.Millisecond,
		CallTimeout:      100 * time.Millisecond,
		RetrieveTimeout:  100 * time.Millisecond,
		SubmitRetryDelay: time.Millisecond,
	}
}

func newService(p providers.Provider, capacity int) (*Service, *cache.Cache) {
	c := cache.New()
	svc := NewService(
		NewOrchestrator(p, nil, fastOptions()),
		c,
		ratelimit.New(capacity, time.Hour),
		nil,
		ServiceOptions{CacheTTL: time.Hour},
	)
	return svc, c
}

func TestFetchPostsStructuredIsCached(t *testing.T) {
	p := &fakeProvider{
		statuses: []domain.JobStatus{domain.JobRunning, domain.JobSucceeded},
		result:   domain.StructuredResult(records(7)),
	}
	svc, c := newService(p, 100)

	got, err := svc.FetchPosts(context.Background(), "NASA", 5)
	if err != nil {
		t.Fatalf("FetchPosts: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 posts, got %d", len(got))
	}
	if got[0].Title != "Launch 0" || got[0].Timestamp != 1700000000*1000 {
		t.Fatalf("unexpected first post %+v", got[0])
	}
	if p.target.URL != "https://www.instagram.com/nasa/" || p.target.Limit != 5 {
		t.Fatalf("unexpected target %+v", p.target)
	}
	if _, ok := c.Get("instagram:nasa:5"); !ok {
		t.Fatalf("expected result cached under instagram:nasa:5")
	}

	res, err := svc.Fetch(context.Background(), "@nasa", 5)
	if err != nil || !res.Cached || len(res.Posts) != 5 {
		t.Fatalf("expected cached result, got %+v %v", res, err)
	}
	if p.submits != 1 {
		t.Fatalf("cache hit should not reach the provider, submits=%d", p.submits)
	}
}

func TestFetchPostsHTMLWithoutStructureReturnsEmpty(t *testing.T) {
	p := &fakeProvider{
		submitStatus: domain.JobSucceeded,
		result:       domain.HTMLResult("<html><body><p>login wall</p></body></html>"),
	}
	svc, c := newService(p, 100)

	got, err := svc.FetchPosts(context.Background(), "nasa", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d posts", len(got))
	}
	if c.Len() != 0 {
		t.Fatalf("empty results must not be cached")
	}
	if p.polls != 0 {
		t.Fatalf("job succeeded on submit, expected no polls, got %d", p.polls)
	}
}

func TestFetchPostsValidation(t *testing.T) {
	p := &fakeProvider{}
	svc, _ := newService(p, 100)

	cases := []struct {
		handle string
		limit  int
	}{
		{"", 5},
		{"   ", 5},
		{"@", 5},
		{"nasa", 0},
		{"nasa", -1},
		{"nasa", 51},
		{"has space", 5},
		{"this_handle_is_definitely_longer_than_thirty", 5},
	}
	for _, tc := range cases {
		_, err := svc.FetchPosts(context.Background(), tc.handle, tc.limit)
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("FetchPosts(%q, %d): expected VALIDATION, got %v", tc.handle, tc.limit, err)
		}
	}
	if p.submits != 0 {
		t.Fatalf("validation failures must not reach the provider")
	}
	if svc.RateLimiterStatus().Remaining != 100 {
		t.Fatalf("validation failures must not consume tokens")
	}
}

func TestFetchPostsValidatesBeforeProviderCheck(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, ServiceOptions{})

	if _, err := svc.FetchPosts(context.Background(), "", 5); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty handle: expected VALIDATION, got %v", err)
	}
	if _, err := svc.FetchPosts(context.Background(), "nasa", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero limit: expected VALIDATION, got %v", err)
	}
	if _, err := svc.FetchPosts(context.Background(), "nasa", 5); !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("valid request without provider: expected PROVIDER_ERROR, got %v", err)
	}
}

func TestFetchPostsRateLimited(t *testing.T) {
	p := &fakeProvider{submitStatus: domain.JobSucceeded, result: domain.StructuredResult(records(1))}
	svc, _ := newService(p, 3)

	for i := 0; i < 3; i++ {
		if _, err := svc.FetchPosts(context.Background(), fmt.Sprintf("user%d", i), 1); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	_, err := svc.FetchPosts(context.Background(), "user9", 1)
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Fatalf("expected RATE_LIMIT, got %v", err)
	}
	if p.submits != 3 {
		t.Fatalf("rate limited request reached provider: submits=%d", p.submits)
	}

	// Cached handles are still served.
	if _, err := svc.FetchPosts(context.Background(), "user0", 1); err != nil {
		t.Fatalf("cache hit should bypass limiter: %v", err)
	}
}

func TestFetchPostsPollBudgetTimeout(t *testing.T) {
	p := &fakeProvider{statuses: []domain.JobStatus{domain.JobRunning}}
	svc, c := newService(p, 100)

	start := time.Now()
	_, err := svc.FetchPosts(context.Background(), "nasa", 5)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("budget not enforced, took %s", elapsed)
	}
	if c.Len() != 0 || p.retrieves != 0 {
		t.Fatalf("timed out job must not be retrieved or cached")
	}
}

func TestRunTerminalStatuses(t *testing.T) {
	cases := map[domain.JobStatus]error{
		domain.JobFailed:   domain.ErrProviderError,
		domain.JobAborted:  domain.ErrProviderError,
		domain.JobTimedOut: domain.ErrTimeout,
	}
	for status, want := range cases {
		p := &fakeProvider{statuses: []domain.JobStatus{domain.JobRunning, status}}
		o := NewOrchestrator(p, nil, fastOptions())

		_, err := o.Run(context.Background(), "nasa", 3)
		if !errors.Is(err, want) {
			t.Fatalf("status %s: expected %v, got %v", status, want, err)
		}
		if p.retrieves != 0 {
			t.Fatalf("status %s: retrieve should not be called", status)
		}
	}
}

func TestRunRetriesTransientSubmitOnce(t *testing.T) {
	transient := domain.TransientProviderError("upstream 503", nil)

	p := &fakeProvider{
		submitErrs:   []error{transient},
		submitStatus: domain.JobSucceeded,
		result:       domain.StructuredResult(records(2)),
	}
	got, err := NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected success after retry, got %d posts err=%v", len(got), err)
	}
	if p.submits != 2 {
		t.Fatalf("expected 2 submits, got %d", p.submits)
	}

	p = &fakeProvider{submitErrs: []error{transient, transient}}
	_, err = NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 2)
	if !errors.Is(err, domain.ErrProviderError) || p.submits != 2 {
		t.Fatalf("expected PROVIDER_ERROR after one retry, submits=%d err=%v", p.submits, err)
	}

	p = &fakeProvider{submitErrs: []error{domain.ProviderError("bad token", nil)}}
	_, err = NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 2)
	if !errors.Is(err, domain.ErrProviderError) || p.submits != 1 {
		t.Fatalf("permanent errors must not be retried, submits=%d err=%v", p.submits, err)
	}
}

func TestRunPassesTargetOptions(t *testing.T) {
	opts := fastOptions()
	opts.TargetOptions = map[string]any{"searchLimit": 1}
	p := &fakeProvider{submitStatus: domain.JobSucceeded, result: domain.StructuredResult(records(1))}

	if _, err := NewOrchestrator(p, nil, opts).Run(context.Background(), "nasa", 1); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.target.Options["searchLimit"] != 1 || p.target.URL != "https://www.instagram.com/nasa/" {
		t.Fatalf("unexpected target %+v", p.target)
	}
}

func TestRunRetrieveTimeout(t *testing.T) {
	p := &fakeProvider{submitStatus: domain.JobSucceeded, retrieveWait: true}
	_, err := NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 2)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT from retrieve guard, got %v", err)
	}
}

func TestRunRetrieveTimeoutWhenProviderIgnoresContext(t *testing.T) {
	p := &fakeProvider{
		submitStatus:  domain.JobSucceeded,
		result:        domain.StructuredResult(records(2)),
		retrieveSleep: 2 * time.Second,
	}

	start := time.Now()
	got, err := NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 2)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %d posts err=%v", len(got), err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("retrieve guard not enforced, took %s", elapsed)
	}
}

func TestRunPollBudgetWhenProviderIgnoresContext(t *testing.T) {
	p := &fakeProvider{
		statuses:  []domain.JobStatus{domain.JobRunning},
		pollSleep: 2 * time.Second,
	}

	start := time.Now()
	_, err := NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 2)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("poll budget not enforced, took %s", elapsed)
	}
}

func TestRunKeepsPollingAfterSlowPoll(t *testing.T) {
	opts := fastOptions()
	opts.PollBudget = time.Second
	opts.CallTimeout = 20 * time.Millisecond

	p := &slowFirstPoll{fakeProvider: fakeProvider{
		statuses: []domain.JobStatus{domain.JobSucceeded},
		result:   domain.StructuredResult(records(1)),
	}}
	got, err := NewOrchestrator(p, nil, opts).Run(context.Background(), "nasa", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected success after slow poll, got %d posts err=%v", len(got), err)
	}
}

// slowFirstPoll hangs on its first poll only.
type slowFirstPoll struct {
	fakeProvider
	once sync.Once
}

func (s *slowFirstPoll) Poll(ctx context.Context, jobID string) (domain.Job, error) {
	slow := false
	s.once.Do(func() { slow = true })
	if slow {
		time.Sleep(200 * time.Millisecond)
	}
	return s.fakeProvider.Poll(ctx, jobID)
}

func TestRunCancelledContext(t *testing.T) {
	p := &fakeProvider{statuses: []domain.JobStatus{domain.JobRunning}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewOrchestrator(p, nil, fastOptions()).Run(ctx, "nasa", 2)
	var de *domain.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected domain error on cancellation, got %v", err)
	}
	if errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("cancellation should not be reported as a timeout: %v", err)
	}
}

func TestRunWithMockProviderHTML(t *testing.T) {
	p := providers.NewMockProvider(providers.Config{
		ID:     "mock",
		Config: map[string]any{providers.ConfigModeKey: providers.MockModeHTML, providers.ConfigPollsKey: 1},
	})
	got, err := NewOrchestrator(p, nil, fastOptions()).Run(context.Background(), "nasa", 3)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 posts from html page, got %d", len(got))
	}
	for _, post := range got {
		if post.Title == "" || len(post.Hashtags) == 0 {
			t.Fatalf("post not normalized: %+v", post)
		}
	}
}

func TestInvalidateCache(t *testing.T) {
	p := &fakeProvider{submitStatus: domain.JobSucceeded, result: domain.StructuredResult(records(2))}
	svc, c := newService(p, 100)

	for _, h := range []string{"nasa", "esa"} {
		for _, limit := range []int{1, 2} {
			if _, err := svc.FetchPosts(context.Background(), h, limit); err != nil {
				t.Fatalf("FetchPosts: %v", err)
			}
		}
	}

	n, err := svc.InvalidateCache("@NASA")
	if err != nil || n != 2 {
		t.Fatalf("InvalidateCache(nasa) = %d, %v", n, err)
	}
	if _, err := svc.InvalidateCache("bad handle"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	n, err = svc.InvalidateCache("")
	if err != nil || n != 2 || c.Len() != 0 {
		t.Fatalf("InvalidateCache(all) = %d, %v (len %d)", n, err, c.Len())
	}
}

func TestNormalizeHandle(t *testing.T) {
	got, err := NormalizeHandle("  @Nat.Geo_1 ", 30)
	if err != nil || got != "nat.geo_1" {
		t.Fatalf("NormalizeHandle = %q, %v", got, err)
	}
	if _, err := NormalizeHandle("naïve", 30); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected non-ascii handle to be rejected, got %v", err)
	}
}
