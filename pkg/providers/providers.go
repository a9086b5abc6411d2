package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package providers contains pluggable scraping backend configs (YAML/JSON) and clients.

// Config describes one scraping backend entry in the providers file.
type Config struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	BaseURL        string         `json:"base_url" yaml:"base_url"`
	Token          string         `json:"-" yaml:"token"`
	TokenEnv       string         `json:"token_env" yaml:"token_env"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	TimeoutSeconds int            `json:"timeout_seconds" yaml:"timeout_seconds"`
	Config         map[string]any `json:"config" yaml:"config"`
	// Input is merged into every job submission as Target.Options.
	Input map[string]any `json:"input" yaml:"input"`
}

type registryFile struct {
	Providers []Config `json:"providers" yaml:"providers"`
}

const (
	defaultRequestDelayMs = 250
	defaultTimeoutSeconds = 30
)

// ConfigRegistry materializes provider definitions loaded from config files.
type ConfigRegistry struct {
	mu        sync.RWMutex
	providers []Config
	idx       map[string]Config
}

// LoadRegistry loads the providers registry from a YAML/JSON file.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("providers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	reg, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return newConfigRegistry(reg.Providers)
}

func newConfigRegistry(cfgs []Config) (*ConfigRegistry, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("providers file contains no providers entries")
	}

	r := &ConfigRegistry{
		providers: make([]Config, len(cfgs)),
		idx:       make(map[string]Config, len(cfgs)),
	}
	for i := range cfgs {
		p := sanitizeConfig(cfgs[i])
		if err := validateConfig(p); err != nil {
			return nil, fmt.Errorf("provider[%d]: %w", i, err)
		}
		if _, exists := r.idx[p.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		r.providers[i] = p
		r.idx[p.ID] = p
	}
	return r, nil
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("providers file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s providers: %w", name, err)
	}
	return reg, nil
}

func sanitizeConfig(p Config) Config {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.TokenEnv = strings.TrimSpace(p.TokenEnv)

	if p.Token == "" && p.TokenEnv != "" {
		p.Token = strings.TrimSpace(os.Getenv(p.TokenEnv))
	}
	if p.Config == nil {
		p.Config = map[string]any{}
	}
	if p.RequestDelayMs < 0 {
		p.RequestDelayMs = defaultRequestDelayMs
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultTimeoutSeconds
	}
	return p
}

func validateConfig(p Config) error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Type == "" {
		return fmt.Errorf("type is required for provider %q", p.ID)
	}
	if p.Type != TypeMock && p.Token == "" {
		return fmt.Errorf("token (or token_env) is required for provider %q", p.ID)
	}
	return nil
}

// All returns all configured providers.
func (r *ConfigRegistry) All() []Config {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, len(r.providers))
	copy(out, r.providers)
	return out
}

// ByID returns the provider entry for id, or the first entry when id is empty.
func (r *ConfigRegistry) ByID(id string) (Config, bool) {
	if r == nil {
		return Config{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id = strings.TrimSpace(id)
	if id == "" {
		if len(r.providers) == 0 {
			return Config{}, false
		}
		return r.providers[0], true
	}
	p, ok := r.idx[id]
	return p, ok
}

// RequestDelay returns the minimum spacing between calls to the backend.
func (p Config) RequestDelay() time.Duration {
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// Timeout returns the transport timeout for a single backend call.
func (p Config) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return time.Duration(defaultTimeoutSeconds) * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}
