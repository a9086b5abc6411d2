package fetcher

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/domain"
	"github.com/samvad-hq/samvad-post-fetcher/internal/logger"
	"github.com/samvad-hq/samvad-post-fetcher/internal/posts"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/providers"
)

// Options bounds the provider job lifecycle.
type Options struct {
	PollInterval     time.Duration
	PollBudget       time.Duration
	CallTimeout      time.Duration
	RetrieveTimeout  time.Duration
	SubmitRetryDelay time.Duration

	// TargetOptions is passed to the provider with every submission.
	TargetOptions map[string]any
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		PollInterval:     5 * time.Second,
		PollBudget:       5 * time.Minute,
		CallTimeout:      30 * time.Second,
		RetrieveTimeout:  60 * time.Second,
		SubmitRetryDelay: 2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollBudget <= 0 {
		o.PollBudget = def.PollBudget
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = def.CallTimeout
	}
	if o.RetrieveTimeout <= 0 {
		o.RetrieveTimeout = def.RetrieveTimeout
	}
	if o.SubmitRetryDelay < 0 {
		o.SubmitRetryDelay = 0
	}
	return o
}

// Orchestrator drives one provider job from submission to normalized posts.
type Orchestrator struct {
	provider   providers.Provider
	log        logger.Logger
	opts       Options
	normalizer posts.Normalizer
}

// NewOrchestrator wires an orchestrator around p.
func NewOrchestrator(p providers.Provider, log logger.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		provider: p,
		log:      logger.Ensure(log),
		opts:     opts.withDefaults(),
	}
}

// ProviderID reports which backend this orchestrator submits to.
func (o *Orchestrator) ProviderID() string {
	if o == nil || o.provider == nil {
		return ""
	}
	return o.provider.ID()
}

// Run submits a job for handle, waits for it to finish and returns up to
// limit unique posts. The provider job is never cancelled on early return.
func (o *Orchestrator) Run(ctx context.Context, handle string, limit int) ([]domain.Post, error) {
	if o == nil || o.provider == nil {
		return nil, domain.ProviderError("orchestrator is not initialized", nil)
	}

	target := providers.Target{
		Handle:  handle,
		URL:     providers.ProfileURL(handle),
		Limit:   limit,
		Options: maps.Clone(o.opts.TargetOptions),
	}

	job, err := o.submit(ctx, target)
	if err != nil {
		return nil, err
	}

	if job.Status != domain.JobSucceeded {
		if job, err = o.await(ctx, job); err != nil {
			return nil, err
		}
	}

	return o.retrieve(ctx, job, limit)
}

func (o *Orchestrator) submit(ctx context.Context, target providers.Target) (domain.Job, error) {
	for attempt := 1; ; attempt++ {
		job, err := o.submitOnce(ctx, target)
		if err == nil {
			o.log.InfoObj("job submitted", "job", map[string]any{
				"provider_id": o.provider.ID(),
				"handle":      target.Handle,
				"job_id":      job.ID,
				"status":      job.Status,
				"attempt":     attempt,
			})
			return job, nil
		}
		if attempt > 1 || !domain.IsTransient(err) {
			return domain.Job{}, err
		}

		o.log.WarnObj("submit failed, retrying", "job", map[string]any{
			"provider_id": o.provider.ID(),
			"handle":      target.Handle,
			"error":       err.Error(),
		})

		timer := time.NewTimer(o.opts.SubmitRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Job{}, contextError(ctx, "submit")
		case <-timer.C:
		}
	}
}

func (o *Orchestrator) submitOnce(ctx context.Context, target providers.Target) (domain.Job, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	job, err := guarded(callCtx, func(ctx context.Context) (domain.Job, error) {
		return o.provider.Submit(ctx, target)
	})
	if err != nil {
		return domain.Job{}, classify(err, "submit")
	}
	if job.ID == "" {
		return domain.Job{}, domain.ProviderError("provider returned a job without id", nil)
	}
	return job, nil
}

// await polls until the job reaches a terminal status or the poll budget runs out.
func (o *Orchestrator) await(ctx context.Context, job domain.Job) (domain.Job, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, o.opts.PollBudget)
	defer cancel()

	ticker := time.NewTicker(o.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for !job.Status.Terminal() {
		select {
		case <-budgetCtx.Done():
			return job, o.budgetError(ctx, job)
		case <-ticker.C:
		}

		next, err := o.poll(budgetCtx, job.ID)
		polls++
		if err != nil {
			if budgetCtx.Err() != nil {
				return job, o.budgetError(ctx, job)
			}
			// A single slow poll is retried while budget remains.
			if !domain.IsTransient(err) && domain.KindOf(err) != domain.KindTimeout {
				return job, err
			}
			o.log.WarnObj("poll failed, will retry", "job", map[string]any{
				"provider_id": o.provider.ID(),
				"job_id":      job.ID,
				"error":       err.Error(),
			})
			continue
		}
		if next.ResultHandle == "" {
			next.ResultHandle = job.ResultHandle
		}
		if next.ID == "" {
			next.ID = job.ID
		}
		job = next
	}

	o.log.DebugObj("job settled", "job", map[string]any{
		"provider_id": o.provider.ID(),
		"job_id":      job.ID,
		"status":      job.Status,
		"polls":       polls,
	})
	return job, settledError(job)
}

func (o *Orchestrator) poll(ctx context.Context, jobID string) (domain.Job, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	job, err := guarded(callCtx, func(ctx context.Context) (domain.Job, error) {
		return o.provider.Poll(ctx, jobID)
	})
	if err != nil {
		return domain.Job{}, classify(err, "poll")
	}
	return job, nil
}

func (o *Orchestrator) budgetError(parent context.Context, job domain.Job) error {
	if parent.Err() != nil {
		return contextError(parent, "poll")
	}
	return domain.Timeout(fmt.Sprintf("job %s did not finish within %s", job.ID, o.opts.PollBudget), nil)
}

func settledError(job domain.Job) error {
	switch job.Status {
	case domain.JobSucceeded:
		return nil
	case domain.JobTimedOut:
		return domain.Timeout(fmt.Sprintf("provider timed out job %s", job.ID), nil)
	default:
		return domain.ProviderError(fmt.Sprintf("job %s ended with status %s", job.ID, job.Status), nil)
	}
}

// retrieve runs under its own timeout derived from the caller's context, not
// from the poll budget.
func (o *Orchestrator) retrieve(ctx context.Context, job domain.Job, limit int) ([]domain.Post, error) {
	rctx, cancel := context.WithTimeout(ctx, o.opts.RetrieveTimeout)
	defer cancel()

	res, err := guarded(rctx, func(ctx context.Context) (domain.Result, error) {
		return o.provider.Retrieve(ctx, job, limit)
	})
	if err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return nil, domain.Timeout(fmt.Sprintf("retrieve for job %s exceeded %s", job.ID, o.opts.RetrieveTimeout), err)
		}
		return nil, classify(err, "retrieve")
	}

	var records []domain.RawRecord
	switch res.Kind {
	case domain.ResultHTML:
		records, err = posts.ExtractFromHTML(res.HTML)
		if err != nil {
			o.log.WarnObj("no posts found in page", "job", map[string]any{
				"provider_id": o.provider.ID(),
				"job_id":      job.ID,
				"error":       err.Error(),
			})
		}
	default:
		records = res.Records
	}

	out := posts.Dedupe(records, limit, o.normalizer)
	o.log.InfoObj("job retrieved", "job", map[string]any{
		"provider_id": o.provider.ID(),
		"job_id":      job.ID,
		"result_kind": res.Kind.String(),
		"records":     len(records),
		"posts":       len(out),
	})
	return out, nil
}

type callResult[T any] struct {
	val T
	err error
}

// guarded runs fn and returns as soon as either fn finishes or ctx is done.
// A provider that ignores ctx keeps running in the background and its late
// result is dropped into the buffered channel.
func guarded[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	done := make(chan callResult[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- callResult[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// classify makes sure every error leaving the orchestrator carries a Kind.
func classify(err error, op string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch domain.KindOf(err) {
	case domain.KindTimeout:
		return domain.Timeout(op+" timed out", err)
	default:
		return domain.ProviderError(op+" failed", err)
	}
}

func contextError(ctx context.Context, op string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Timeout(op+" interrupted by deadline", ctx.Err())
	}
	return domain.ProviderError(op+" cancelled", ctx.Err())
}
