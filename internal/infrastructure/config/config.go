package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Logging    LogConfig
	RateLimit  RateLimitConfig
	Resilience ResilienceConfig
	AI         AIConfig
	MarketData MarketDataConfig
	Backend    BackendConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8600"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ResilienceConfig holds the resilience layer configuration.
type ResilienceConfig struct {
	// IntegrationsFile optionally points at a YAML file defining the
	// integrations and their breaker thresholds.
	IntegrationsFile string        `envconfig:"INTEGRATIONS_FILE" default:""`
	WindowSize       int           `envconfig:"HEALTH_WINDOW_SIZE" default:"50"`
	StreamInterval   time.Duration `envconfig:"HEALTH_STREAM_INTERVAL" default:"5s"`
	// StateFile persists the live/offline application mode across restarts.
	StateFile string `envconfig:"DEGRADED_STATE_FILE" default:"/tmp/quantforge/app-mode.json"`
}

// AIConfig holds strategy-generation API configuration.
type AIConfig struct {
	BaseURL string        `envconfig:"AI_BASE_URL" default:"http://localhost:8601"`
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	RPS     float64       `envconfig:"AI_RPS" default:"2"`
}

// MarketDataConfig holds the live feed configuration.
type MarketDataConfig struct {
	URL     string        `envconfig:"MARKET_DATA_URL" default:"ws://localhost:8602/feed"`
	Timeout time.Duration `envconfig:"MARKET_DATA_TIMEOUT" default:"10s"`
	Symbols []string      `envconfig:"MARKET_DATA_SYMBOLS" default:"SPY,QQQ"`
}

// BackendConfig holds the persistence backend configuration.
type BackendConfig struct {
	BaseURL string        `envconfig:"BACKEND_BASE_URL" default:"http://localhost:8603"`
	Timeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"15s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8600", Host: "0.0.0.0"},
		Logging: LogConfig{Level: "info", Development: false},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Resilience: ResilienceConfig{
			WindowSize:     50,
			StreamInterval: 5 * time.Second,
			StateFile:      "/tmp/quantforge/app-mode.json",
		},
		AI:         AIConfig{BaseURL: "http://localhost:8601", Timeout: 60 * time.Second, RPS: 2},
		MarketData: MarketDataConfig{URL: "ws://localhost:8602/feed", Timeout: 10 * time.Second, Symbols: []string{"SPY", "QQQ"}},
		Backend:    BackendConfig{BaseURL: "http://localhost:8603", Timeout: 15 * time.Second},
	}
}

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.BytesUnmarshaler.
func (d *Duration) UnmarshalYAML(b []byte) error {
	var raw string
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// IntegrationConfig defines one integration and its breaker tolerances.
type IntegrationConfig struct {
	Name             string   `yaml:"name"`
	Type             string   `yaml:"type"`
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	// Critical integrations flip the application into offline mode when
	// their breaker opens.
	Critical bool `yaml:"critical"`
}

type integrationsFile struct {
	Integrations []IntegrationConfig `yaml:"integrations"`
}

// LoadIntegrations reads integration definitions from a YAML file.
func LoadIntegrations(path string) ([]IntegrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read integrations file: %w", err)
	}

	var file integrationsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse integrations file: %w", err)
	}

	for i, ic := range file.Integrations {
		if ic.Name == "" {
			return nil, fmt.Errorf("integration %d has no name", i)
		}
	}
	return file.Integrations, nil
}

// DefaultIntegrations returns the built-in integration set used when no
// integrations file is configured.
func DefaultIntegrations() []IntegrationConfig {
	return []IntegrationConfig{
		{
			Name:             "ai-generation",
			Type:             "ai",
			FailureThreshold: 3,
			SuccessThreshold: 1,
			RecoveryTimeout:  Duration(30 * time.Second),
			Critical:         true,
		},
		{
			Name:             "database",
			Type:             "database",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			RecoveryTimeout:  Duration(60 * time.Second),
			Critical:         true,
		},
		{
			// A flaky feed socket is expected to reconnect readily.
			Name:             "market-data",
			Type:             "market-data",
			FailureThreshold: 10,
			SuccessThreshold: 1,
			RecoveryTimeout:  Duration(10 * time.Second),
		},
	}
}
