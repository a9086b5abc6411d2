package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	HTTPAddr       string `mapstructure:"http_addr"`
	ProvidersFile  string `mapstructure:"providers_file"`
	ProviderID     string `mapstructure:"provider_id"`
	PublishersFile string `mapstructure:"publishers_file"`

	RateLimitCapacity      int   `mapstructure:"rate_limit_capacity"`
	RateLimitWindowSeconds int64 `mapstructure:"rate_limit_window_seconds"`
	CacheTTLSeconds        int64 `mapstructure:"cache_ttl_seconds"`
	CacheJanitorSeconds    int64 `mapstructure:"cache_janitor_seconds"`
	PollIntervalSeconds    int64 `mapstructure:"poll_interval_seconds"`
	PollBudgetSeconds      int64 `mapstructure:"poll_budget_seconds"`
	CallTimeoutSeconds     int64 `mapstructure:"call_timeout_seconds"`
	RetrieveTimeoutSeconds int64 `mapstructure:"retrieve_timeout_seconds"`
	SubmitRetryDelayMs     int64 `mapstructure:"submit_retry_delay_ms"`
	MaxLimit               int   `mapstructure:"max_limit"`

	RateLimitWindow  time.Duration `mapstructure:"-"`
	CacheTTL         time.Duration `mapstructure:"-"`
	CacheJanitor     time.Duration `mapstructure:"-"`
	PollInterval     time.Duration `mapstructure:"-"`
	PollBudget       time.Duration `mapstructure:"-"`
	CallTimeout      time.Duration `mapstructure:"-"`
	RetrieveTimeout  time.Duration `mapstructure:"-"`
	SubmitRetryDelay time.Duration `mapstructure:"-"`

	WatchHandlesRaw      string        `mapstructure:"watch_handles"`
	WatchHandles         []string      `mapstructure:"-"`
	WatchLimit           int           `mapstructure:"watch_limit"`
	WatchIntervalSeconds int64         `mapstructure:"watch_interval"`
	WatchInterval        time.Duration `mapstructure:"-"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	SQLitePath             string        `mapstructure:"sqlite_path"`
	PostgresDSN            string        `mapstructure:"postgres_dsn" json:"-"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()

	v.SetDefault("app_name", "samvad-post-fetcher")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("providers_file", "./configs/providers.yaml")
	v.SetDefault("provider_id", "")
	v.SetDefault("publishers_file", "")
	v.SetDefault("rate_limit_capacity", 100)
	v.SetDefault("rate_limit_window_seconds", int64(time.Hour/time.Second))
	v.SetDefault("cache_ttl_seconds", int64(time.Hour/time.Second))
	v.SetDefault("cache_janitor_seconds", 300)
	v.SetDefault("poll_interval_seconds", 5)
	v.SetDefault("poll_budget_seconds", 300)
	v.SetDefault("call_timeout_seconds", 30)
	v.SetDefault("retrieve_timeout_seconds", 60)
	v.SetDefault("submit_retry_delay_ms", 2000)
	v.SetDefault("max_limit", 50)
	v.SetDefault("watch_handles", "")
	v.SetDefault("watch_limit", 12)
	v.SetDefault("watch_interval", 900) // seconds
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/seen.db")
	v.SetDefault("sqlite_path", "./data/seen.sqlite")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("storage_ttl_seconds", int64((5*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finalize validates numeric settings and derives durations.
func (cfg *Config) finalize() error {
	if cfg.RateLimitCapacity <= 0 {
		return fmt.Errorf("invalid rate_limit_capacity (must be positive)")
	}
	if cfg.MaxLimit <= 0 {
		return fmt.Errorf("invalid max_limit (must be positive)")
	}

	durations := []struct {
		name    string
		seconds int64
		out     *time.Duration
	}{
		{"rate_limit_window_seconds", cfg.RateLimitWindowSeconds, &cfg.RateLimitWindow},
		{"cache_ttl_seconds", cfg.CacheTTLSeconds, &cfg.CacheTTL},
		{"cache_janitor_seconds", cfg.CacheJanitorSeconds, &cfg.CacheJanitor},
		{"poll_interval_seconds", cfg.PollIntervalSeconds, &cfg.PollInterval},
		{"poll_budget_seconds", cfg.PollBudgetSeconds, &cfg.PollBudget},
		{"call_timeout_seconds", cfg.CallTimeoutSeconds, &cfg.CallTimeout},
		{"retrieve_timeout_seconds", cfg.RetrieveTimeoutSeconds, &cfg.RetrieveTimeout},
		{"watch_interval", cfg.WatchIntervalSeconds, &cfg.WatchInterval},
		{"storage_ttl_seconds", cfg.StorageTTLSeconds, &cfg.StorageTTL},
		{"storage_cleanup_interval_seconds", cfg.StorageCleanupSeconds, &cfg.StorageCleanupInterval},
	}
	for _, d := range durations {
		if d.seconds <= 0 {
			return fmt.Errorf("invalid %s (must be positive seconds)", d.name)
		}
		*d.out = time.Duration(d.seconds) * time.Second
	}

	if cfg.SubmitRetryDelayMs < 0 {
		return fmt.Errorf("invalid submit_retry_delay_ms (must not be negative)")
	}
	cfg.SubmitRetryDelay = time.Duration(cfg.SubmitRetryDelayMs) * time.Millisecond

	if cfg.PollInterval >= cfg.PollBudget {
		return fmt.Errorf("poll_interval_seconds must be shorter than poll_budget_seconds")
	}

	cfg.WatchHandles = splitList(cfg.WatchHandlesRaw)
	if len(cfg.WatchHandles) > 0 && cfg.WatchLimit <= 0 {
		return fmt.Errorf("invalid watch_limit (must be positive)")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
