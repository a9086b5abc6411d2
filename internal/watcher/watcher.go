package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/logger"
)

// Processor handles a single watched account.
type Processor interface {
	Process(ctx context.Context, handle string) error
}

// Watcher polls a fixed list of handles on an interval and publishes new posts.
type Watcher struct {
	processor Processor
	handles   []string
	interval  time.Duration
	log       logger.Logger
}

// New builds a watcher over handles.
func New(p Processor, handles []string, interval time.Duration, log logger.Logger) *Watcher {
	return &Watcher{
		processor: p,
		handles:   handles,
		interval:  interval,
		log:       logger.Ensure(log),
	}
}

// Run performs an immediate pass and then one per interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w == nil || w.processor == nil {
		return fmt.Errorf("watcher is not initialized")
	}
	if len(w.handles) == 0 {
		w.log.WarnObj("no handles configured; watcher idle", "watch_handles", w.handles)
		<-ctx.Done()
		return nil
	}
	if w.interval <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}

	w.log.InfoObj("watcher loop starting", "watcher_state", map[string]any{
		"handles":  w.handles,
		"interval": w.interval.String(),
	})

	if err := w.RunOnce(ctx); err != nil {
		w.log.ErrorObj("initial watch pass failed", "error", err.Error())
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.InfoObj("watcher loop exiting", "reason", ctx.Err().Error())
			return nil
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.log.ErrorObj("scheduled watch pass failed", "error", err.Error())
			}
		}
	}
}

// RunOnce processes every handle once. Errors are collected so one failing
// handle does not starve the others.
func (w *Watcher) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error
	for _, handle := range w.handles {
		if ctx.Err() != nil {
			break
		}
		if err := w.processor.Process(ctx, handle); err != nil {
			errs = append(errs, err)
			w.log.ErrorObj("handle watch failed", "watch_error", map[string]any{
				"handle": handle,
				"error":  err.Error(),
			})
		}
	}

	w.log.InfoObj("watch pass completed", "watch_meta", map[string]any{
		"handles":    len(w.handles),
		"failed":     len(errs),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return errors.Join(errs...)
}
