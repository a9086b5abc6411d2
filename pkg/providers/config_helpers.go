package providers

import (
	"strconv"
	"strings"
)

// ConfigString returns the trimmed string value for key from cfg.Config or a fallback.
func ConfigString(cfg Config, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// ConfigInt returns the integer value for key from cfg.Config or a fallback.
func ConfigInt(cfg Config, key string, fallback int) int {
	if cfg.Config == nil {
		return fallback
	}
	switch v := cfg.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

const (
	ConfigUserAgentKey   = "user_agent"
	ConfigActorIDKey     = "actor_id"
	ConfigResultsTypeKey = "results_type"
	ConfigDatasetIDKey   = "dataset_id"
	ConfigModeKey        = "mode"
	ConfigPollsKey       = "polls"
	ConfigFailKey        = "fail_status"
)

// Headers builds the common request headers from a provider config (skips empty values).
func Headers(cfg Config) map[string]string {
	headers := make(map[string]string, 2)

	if v := ConfigString(cfg, ConfigUserAgentKey, ""); v != "" {
		headers["User-Agent"] = v
	}
	headers["Accept"] = "application/json"

	return headers
}

func withHeader(headers map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out[key] = value
	return out
}
