package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Provider    ProviderConfig  `toml:"provider"`
	Scan        ScanConfig      `toml:"scan"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig represents SQLite-specific configuration.
type SQLiteConfig struct {
	Path          string `toml:"path"`
	CacheSizeMB   int    `toml:"cache_size_mb"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
	WALMode       bool   `toml:"wal_mode"`
}

// ProviderConfig configures the outbound market-data API client.
type ProviderConfig struct {
	BaseURL              string        `toml:"base_url" validate:"required,url"`
	APIKey               string        `toml:"api_key"`
	MaxRequestsPerSecond int           `toml:"max_requests_per_second" validate:"gte=1"`
	RateBucketCapacity   int           `toml:"rate_bucket_capacity" validate:"gte=1"`
	RequestsPaused       bool          `toml:"requests_paused"` // global kill-switch
	RequestTimeout       time.Duration `toml:"request_timeout"`
	BreakerThreshold     int           `toml:"breaker_threshold" validate:"gte=1"`
	BreakerCooldown      time.Duration `toml:"breaker_cooldown"`
}

// ScanConfig configures the bulk scan engine.
type ScanConfig struct {
	SourceInterval          string        `toml:"source_interval"`
	FetchConcurrency        int           `toml:"fetch_concurrency" validate:"gte=1"`
	WeeklyConcurrency       int           `toml:"weekly_concurrency" validate:"gte=1"`
	DetectorConcurrency     int           `toml:"detector_concurrency" validate:"gte=1"`
	AdaptiveMinConcurrency  int           `toml:"adaptive_min_concurrency" validate:"gte=1"`
	TickerTimeout           time.Duration `toml:"ticker_timeout"`
	MATimeout               time.Duration `toml:"ma_timeout"`
	StallTimeout            time.Duration `toml:"stall_timeout"`
	StallCheckInterval      time.Duration `toml:"stall_check_interval"`
	StallMaxRetries         int           `toml:"stall_max_retries" validate:"gte=0"`
	SummaryFlushSize        int           `toml:"summary_flush_size" validate:"gte=1"`
	SummaryUpsertBatchSize  int           `toml:"summary_upsert_batch_size" validate:"gte=1"`
	SummaryBuildConcurrency int           `toml:"summary_build_concurrency" validate:"gte=1"`
	LookbackDays            int           `toml:"lookback_days" validate:"gte=1"`
	UniverseFloor           int           `toml:"universe_floor" validate:"gte=0"`
}

// SchedulerConfig configures cron-triggered scan programs.
type SchedulerConfig struct {
	Enabled          bool   `toml:"enabled"`
	DailySchedule    string `toml:"daily_schedule"`
	WeeklySchedule   string `toml:"weekly_schedule"`
	DetectorSchedule string `toml:"detector_schedule"`
}

// DefaultConfig returns the configuration defaults applied before any
// config file or environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/speculor.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
		},
		Provider: ProviderConfig{
			BaseURL:              "https://api.polygon.io",
			MaxRequestsPerSecond: 99,
			RateBucketCapacity:   99,
			RequestTimeout:       15 * time.Second,
			BreakerThreshold:     5,
			BreakerCooldown:      30 * time.Second,
		},
		Scan: ScanConfig{
			SourceInterval:          "1min",
			FetchConcurrency:        12,
			WeeklyConcurrency:       8,
			DetectorConcurrency:     3,
			AdaptiveMinConcurrency:  2,
			TickerTimeout:           3 * time.Minute,
			MATimeout:               90 * time.Second,
			StallTimeout:            90 * time.Second,
			StallCheckInterval:      2 * time.Second,
			StallMaxRetries:         3,
			SummaryFlushSize:        50,
			SummaryUpsertBatchSize:  200,
			SummaryBuildConcurrency: 6,
			LookbackDays:            40,
			UniverseFloor:           500,
		},
		Scheduler: SchedulerConfig{
			Enabled:          false,
			DailySchedule:    "30 16 * * 1-5",
			WeeklySchedule:   "0 17 * * 5",
			DetectorSchedule: "0 18 * * 1-5",
		},
	}
}

// LoadConfig loads configuration in layered order: defaults, then each
// config file in order (later files override earlier ones), then
// environment variables.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the loaded configuration for structural problems.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Provider variables use the DATA_API_* names, scan tuning uses the
// DIVERGENCE_* names, server/logging use SPECULOR_*.
func applyEnvOverrides(config *Config) {
	// Server configuration
	if port := os.Getenv("SPECULOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SPECULOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("SPECULOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SPECULOR_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Storage configuration
	if path := os.Getenv("SPECULOR_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}

	// Provider configuration
	if apiKey := os.Getenv("DATA_API_KEY"); apiKey != "" {
		config.Provider.APIKey = apiKey
	}
	if baseURL := os.Getenv("DATA_API_BASE_URL"); baseURL != "" {
		config.Provider.BaseURL = baseURL
	}
	if rps := os.Getenv("DATA_API_MAX_REQUESTS_PER_SECOND"); rps != "" {
		if v, err := strconv.Atoi(rps); err == nil && v > 0 {
			config.Provider.MaxRequestsPerSecond = v
			// Capacity follows the rate unless explicitly overridden below.
			config.Provider.RateBucketCapacity = v
		}
	}
	if capacity := os.Getenv("DATA_API_RATE_BUCKET_CAPACITY"); capacity != "" {
		if v, err := strconv.Atoi(capacity); err == nil && v > 0 {
			config.Provider.RateBucketCapacity = v
		}
	}
	if paused := os.Getenv("DATA_API_REQUESTS_PAUSED"); paused != "" {
		if v, err := strconv.ParseBool(paused); err == nil {
			config.Provider.RequestsPaused = v
		}
	}
	if timeout := os.Getenv("DATA_API_REQUEST_TIMEOUT_MS"); timeout != "" {
		if v, err := strconv.Atoi(timeout); err == nil && v > 0 {
			config.Provider.RequestTimeout = time.Duration(v) * time.Millisecond
		}
	}

	// Scan configuration
	if interval := os.Getenv("DIVERGENCE_SOURCE_INTERVAL"); interval != "" {
		config.Scan.SourceInterval = interval
	}
	if v, ok := envInt("DIVERGENCE_FETCH_CONCURRENCY"); ok {
		config.Scan.FetchConcurrency = v
	}
	if v, ok := envInt("DIVERGENCE_WEEKLY_CONCURRENCY"); ok {
		config.Scan.WeeklyConcurrency = v
	}
	if v, ok := envInt("DIVERGENCE_DETECTOR_CONCURRENCY"); ok {
		config.Scan.DetectorConcurrency = v
	}
	if v, ok := envInt("DIVERGENCE_ADAPTIVE_MIN_CONCURRENCY"); ok {
		config.Scan.AdaptiveMinConcurrency = v
	}
	if v, ok := envInt("DIVERGENCE_FETCH_TICKER_TIMEOUT_MS"); ok {
		config.Scan.TickerTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("DIVERGENCE_MA_TIMEOUT_MS"); ok {
		config.Scan.MATimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("DIVERGENCE_STALL_TIMEOUT_MS"); ok {
		config.Scan.StallTimeout = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("DIVERGENCE_STALL_CHECK_INTERVAL_MS"); ok {
		config.Scan.StallCheckInterval = time.Duration(v) * time.Millisecond
	}
	if v, ok := envInt("DIVERGENCE_STALL_MAX_RETRIES"); ok {
		config.Scan.StallMaxRetries = v
	}
	if v, ok := envInt("DIVERGENCE_FETCH_RUN_SUMMARY_FLUSH_SIZE"); ok {
		config.Scan.SummaryFlushSize = v
	}
	if v, ok := envInt("DIVERGENCE_SUMMARY_UPSERT_BATCH_SIZE"); ok {
		config.Scan.SummaryUpsertBatchSize = v
	}
	if v, ok := envInt("DIVERGENCE_SUMMARY_BUILD_CONCURRENCY"); ok {
		config.Scan.SummaryBuildConcurrency = v
	}
	if v, ok := envInt("DIVERGENCE_LOOKBACK_DAYS"); ok {
		config.Scan.LookbackDays = v
	}

	// Scheduler configuration
	if enabled := os.Getenv("SPECULOR_SCHEDULER_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = v
		}
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// IsProduction returns true if the environment is set to production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
