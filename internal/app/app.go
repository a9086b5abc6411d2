package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-post-fetcher/internal/cache"
	"github.com/samvad-hq/samvad-post-fetcher/internal/config"
	"github.com/samvad-hq/samvad-post-fetcher/internal/fetcher"
	"github.com/samvad-hq/samvad-post-fetcher/internal/logger"
	"github.com/samvad-hq/samvad-post-fetcher/internal/ratelimit"
	"github.com/samvad-hq/samvad-post-fetcher/internal/server"
	"github.com/samvad-hq/samvad-post-fetcher/internal/storage"
	"github.com/samvad-hq/samvad-post-fetcher/internal/watcher"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/providers"
	"github.com/samvad-hq/samvad-post-fetcher/pkg/publishers"
)

// App represents the post fetcher runtime. It owns the fetch service and the
// HTTP server, the cache janitor and, when handles are configured, the watcher
// loop with its storage and publishers.
type App struct {
	cfg        *config.Config
	log        logger.Logger
	cache      *cache.Cache
	service    *fetcher.Service
	server     *server.Server
	watcher    *watcher.Watcher
	store      storage.Store
	publishers []publishers.Publisher
}

// New builds the runtime from config files.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	provider, providerCfg, err := buildProvider(cfg, log)
	if err != nil {
		return nil, err
	}

	orch := fetcher.NewOrchestrator(provider, log, fetcher.Options{
		PollInterval:     cfg.PollInterval,
		PollBudget:       cfg.PollBudget,
		CallTimeout:      cfg.CallTimeout,
		RetrieveTimeout:  cfg.RetrieveTimeout,
		SubmitRetryDelay: cfg.SubmitRetryDelay,
		TargetOptions:    providerCfg.Input,
	})
	c := cache.New()
	svc := fetcher.NewService(orch, c, ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitWindow), log, fetcher.ServiceOptions{
		CacheTTL: cfg.CacheTTL,
		MaxLimit: cfg.MaxLimit,
	})

	a := &App{
		cfg:     cfg,
		log:     log,
		cache:   c,
		service: svc,
		server:  server.New(cfg.HTTPAddr, svc, log),
	}

	if len(cfg.WatchHandles) > 0 {
		if err := a.initWatcher(ctx, provider.ID()); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

func buildProvider(cfg *config.Config, log logger.Logger) (providers.Provider, providers.Config, error) {
	providerReg, err := providers.LoadRegistry(cfg.ProvidersFile)
	if err != nil {
		return nil, providers.Config{}, fmt.Errorf("load providers registry: %w", err)
	}
	all := providerReg.All()
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID)
	}
	log.InfoObj("providers registry loaded", "providers_meta", map[string]any{
		"count": len(ids),
		"ids":   ids,
	})

	providerCfg, ok := providerReg.ByID(cfg.ProviderID)
	if !ok {
		return nil, providers.Config{}, fmt.Errorf("provider %q not found in %s", cfg.ProviderID, cfg.ProvidersFile)
	}
	provider, err := providers.DefaultBuilderRegistry().Build(providerCfg, nil)
	if err != nil {
		return nil, providers.Config{}, fmt.Errorf("build provider %s: %w", providerCfg.ID, err)
	}
	log.InfoObj("provider selected", "provider", map[string]any{
		"id":               providerCfg.ID,
		"type":             providerCfg.Type,
		"request_delay_ms": providerCfg.RequestDelayMs,
		"input_keys":       len(providerCfg.Input),
	})
	return provider, providerCfg, nil
}

func (a *App) initWatcher(ctx context.Context, providerID string) error {
	cfg := a.cfg

	var fanout *publishers.Fanout
	if strings.TrimSpace(cfg.PublishersFile) != "" {
		publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
		if err != nil {
			return fmt.Errorf("load publishers registry: %w", err)
		}
		enabled := publisherReg.Enabled()
		pubs, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, a.log)
		if err != nil {
			return fmt.Errorf("build publishers: %w", err)
		}
		a.publishers = pubs
		fanout = publishers.NewFanout(pubs, a.log)

		summaries := make([]map[string]string, 0, len(enabled))
		for _, pubCfg := range enabled {
			summaries = append(summaries, map[string]string{
				"id":      pubCfg.ID,
				"type":    pubCfg.Type,
				"handles": strings.Join(pubCfg.Handles, ","),
			})
		}
		a.log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
			"count":      len(summaries),
			"publishers": summaries,
		})
	}
	if fanout.Size() == 0 {
		a.log.WarnObj("no publishers configured; watcher will only warm the cache", "publishers_file", cfg.PublishersFile)
	}

	store, err := storage.NewStore(ctx, storage.Options{
		Type:            cfg.StorageType,
		Path:            storagePath(cfg),
		DSN:             cfg.PostgresDSN,
		TTL:             cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	a.store = store
	a.log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     storagePath(cfg),
		"ttl_seconds":              int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	var pub watcher.EventPublisher
	if fanout.Size() > 0 {
		pub = fanout
	}
	processor := watcher.NewHandleProcessor(a.service, pub, store, a.log, providerID, cfg.WatchLimit)
	a.watcher = watcher.New(processor, cfg.WatchHandles, cfg.WatchInterval, a.log)
	return nil
}

func storagePath(cfg *config.Config) string {
	if strings.EqualFold(strings.TrimSpace(cfg.StorageType), storage.TypeSQLite) {
		return cfg.SQLitePath
	}
	return cfg.BBoltPath
}

// Service exposes the fetch service.
func (a *App) Service() *fetcher.Service {
	if a == nil {
		return nil
	}
	return a.service
}

// Run starts every component and blocks until ctx is cancelled or the HTTP
// server fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app is not initialized")
	}
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	a.log.InfoObj("post fetcher starting", "app_state", map[string]any{
		"http_addr":      a.cfg.HTTPAddr,
		"watch_handles":  a.cfg.WatchHandles,
		"watch_interval": a.cfg.WatchInterval.String(),
	})

	start("http server", a.server.Run)
	start("cache janitor", a.runJanitor)
	if a.watcher != nil {
		start("watcher", a.watcher.Run)
	}

	wg.Wait()
	a.log.InfoObj("post fetcher stopped", "reason", fmt.Sprint(context.Cause(ctx)))
	return errors.Join(errs...)
}

// runJanitor purges expired cache entries on a fixed cadence.
func (a *App) runJanitor(ctx context.Context) error {
	interval := a.cfg.CacheJanitor
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.cache.PurgeExpired(); n > 0 {
				a.log.DebugObj("cache entries purged", "cache_janitor", map[string]any{
					"purged":    n,
					"remaining": a.cache.Len(),
				})
			}
		}
	}
}

// close releases the store and publishers, logging any errors encountered.
func (a *App) close() {
	if a == nil {
		return
	}
	if err := publishers.CloseAll(a.publishers); err != nil {
		a.log.ErrorObj("publisher close failed", "error", err.Error())
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.ErrorObj("storage close failed", "error", err.Error())
		}
	}
}
