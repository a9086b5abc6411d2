package providers

import (
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-post-fetcher/pkg/httpclient"
)

// Builder constructs a Provider for a config entry using the given client.
type Builder func(cfg Config, client HTTPClient) (Provider, error)

// BuilderRegistry maps provider types to their builders.
type BuilderRegistry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewBuilderRegistry builds a registry from a type->builder map.
func NewBuilderRegistry(builders map[string]Builder) *BuilderRegistry {
	reg := &BuilderRegistry{builders: make(map[string]Builder, len(builders))}
	for typ, b := range builders {
		reg.Register(typ, b)
	}
	return reg
}

// Register adds or replaces the builder for typ.
func (r *BuilderRegistry) Register(typ string, b Builder) {
	if r == nil || b == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.builders[key] = b
	r.mu.Unlock()
}

// Build selects the builder for cfg.Type and wires a paced HTTP client into it.
// A nil client gets a resty client with the entry's timeout.
func (r *BuilderRegistry) Build(cfg Config, client HTTPClient) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("provider builder registry is nil")
	}
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("provider id is empty")
	}

	r.mu.RLock()
	b, ok := r.builders[strings.ToLower(strings.TrimSpace(cfg.Type))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no builder registered for provider %q (type %q)", cfg.ID, cfg.Type)
	}

	if client == nil {
		client = httpclient.NewRestyClient(cfg.Timeout())
	}
	return b(cfg, httpclient.NewPacedClient(client, cfg.RequestDelay()))
}

const (
	TypeApify      = "apify"
	TypeZyte       = "zyte"
	TypeBrightData = "brightdata"
	TypeMock       = "mock"
)

// DefaultBuilderRegistry wires up the known scraping backends.
func DefaultBuilderRegistry() *BuilderRegistry {
	return NewBuilderRegistry(map[string]Builder{
		TypeApify:      NewApifyProvider,
		TypeZyte:       NewZyteProvider,
		TypeBrightData: NewBrightDataProvider,
		TypeMock:       func(cfg Config, _ HTTPClient) (Provider, error) { return NewMockProvider(cfg), nil },
	})
}
