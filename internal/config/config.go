package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"port"`
	DatabasePath string `mapstructure:"database_path"`
	LogLevel     string `mapstructure:"log_level"`

	// S3 archive of original uploads. Disabled when the endpoint is empty.
	S3Endpoint        string `mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `mapstructure:"s3_secret_access_key"`
	S3BucketName      string `mapstructure:"s3_bucket_name"`
	S3UseSSL          bool   `mapstructure:"s3_use_ssl"`

	// Long-context / vision backend
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	// Fast-text backend, any OpenAI-compatible endpoint
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIModel   string `mapstructure:"openai_model"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	ProviderTimeout    time.Duration `mapstructure:"provider_timeout"`
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`

	// Free tier
	FreeDailyLimit        int           `mapstructure:"free_daily_limit"`
	MaxFreeChars          int           `mapstructure:"max_free_chars"`
	QuotaTimezone         string        `mapstructure:"quota_timezone"`
	RewardCountdown       time.Duration `mapstructure:"reward_countdown"`
	InterstitialCountdown time.Duration `mapstructure:"interstitial_countdown"`

	// HTTP
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxFileSize    int64    `mapstructure:"max_file_size"`
	MaxBodySize    int64    `mapstructure:"max_body_size"`

	// Shared secret for entitlement updates from the purchase backend
	EntitlementToken string `mapstructure:"entitlement_token"`

	// Maintenance
	HistoryRetentionDays int           `mapstructure:"history_retention_days"`
	SessionTTL           time.Duration `mapstructure:"session_ttl"`
	SweepSchedule        string        `mapstructure:"sweep_schedule"`
}

// Load reads config.yaml from the working directory or ./config if present,
// then environment variables such as PORT or GEMINI_API_KEY.
func Load() (*Config, error) {
	return LoadFrom(".", "./config")
}

// LoadFrom is Load with explicit config file search paths.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location is the time zone used for quota day boundaries.
func (c *Config) Location() *time.Location {
	if c.QuotaTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ArchiveEnabled reports whether uploads are archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Endpoint != ""
}

func (c *Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.QuotaTimezone != "" {
		if _, err := time.LoadLocation(c.QuotaTimezone); err != nil {
			return fmt.Errorf("invalid quota_timezone %q: %w", c.QuotaTimezone, err)
		}
	}
	if c.FreeDailyLimit < 0 || c.MaxFreeChars < 0 {
		return fmt.Errorf("free tier limits must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_path", "data/docexplain.db")
	v.SetDefault("log_level", "info")

	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key_id", "")
	v.SetDefault("s3_secret_access_key", "")
	v.SetDefault("s3_bucket_name", "documents")
	v.SetDefault("s3_use_ssl", false)

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")

	v.SetDefault("provider_timeout", "60s")
	v.SetDefault("breaker_failures", 5)
	v.SetDefault("breaker_open_timeout", "30s")

	v.SetDefault("free_daily_limit", 3)
	v.SetDefault("max_free_chars", 15000)
	v.SetDefault("quota_timezone", "")
	v.SetDefault("reward_countdown", "15s")
	v.SetDefault("interstitial_countdown", "5s")

	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("max_file_size", 10*1024*1024)
	v.SetDefault("max_body_size", 20*1024*1024)
	v.SetDefault("entitlement_token", "")

	v.SetDefault("history_retention_days", 30)
	v.SetDefault("session_ttl", "2h")
	v.SetDefault("sweep_schedule", "@every 10m")
}

// splitList trims entries and also splits ones given as "a, b" in YAML.
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
