// Package config loads toolflow configuration from a YAML file and
// TOOLFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete toolflow configuration.
type Config struct {
	Provider  ProviderConfig  `koanf:"provider"`
	Flow      FlowConfig      `koanf:"flow"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Scrub     ScrubConfig     `koanf:"scrub"`
}

// ProviderConfig configures the remote generation service.
type ProviderConfig struct {
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute float64  `koanf:"requests_per_minute"`
	Burst             int      `koanf:"burst"`
	MaxTokens         int      `koanf:"max_tokens"`
	Temperature       float64  `koanf:"temperature"`
}

// FlowConfig holds run-time flow options.
type FlowConfig struct {
	// RetryDelay is waited between rounds of every step that does not set its own.
	RetryDelay Duration `koanf:"retry_delay"`

	// UsageScope is "all" (every attempt) or "final" (final attempts only).
	UsageScope string `koanf:"usage_scope"`

	// FinalOnly prunes the reported history to final attempts.
	FinalOnly bool `koanf:"final_only"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// ScrubConfig controls secret scrubbing of generation payloads.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Usage scopes accepted by FlowConfig.UsageScope.
const (
	UsageScopeAll   = "all"
	UsageScopeFinal = "final"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Model:             "gpt-4o-mini",
			Timeout:           Duration(60 * time.Second),
			RequestsPerMinute: 60,
			Burst:             1,
			MaxTokens:         1024,
			Temperature:       0.2,
		},
		Flow: FlowConfig{
			UsageScope: UsageScopeAll,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			ServiceName: "toolflow",
			Insecure:    true,
		},
		Scrub: ScrubConfig{
			Enabled: true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	p := c.Provider
	if p.Model == "" {
		errs = append(errs, errors.New("provider.model is required"))
	}
	if p.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("provider.requests_per_minute must be >= 0, got %v", p.RequestsPerMinute))
	}
	if p.RequestsPerMinute > 0 && p.Burst < 1 {
		errs = append(errs, fmt.Errorf("provider.burst must be >= 1, got %d", p.Burst))
	}
	if p.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("provider.max_tokens must be >= 0, got %d", p.MaxTokens))
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		errs = append(errs, fmt.Errorf("provider.temperature must be within [0, 2], got %v", p.Temperature))
	}

	switch c.Flow.UsageScope {
	case UsageScopeAll, UsageScopeFinal:
	default:
		errs = append(errs, fmt.Errorf("flow.usage_scope must be %q or %q, got %q", UsageScopeAll, UsageScopeFinal, c.Flow.UsageScope))
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of trace, debug, info, warn, error", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http/protobuf, got %q", c.Telemetry.Protocol))
		}
	}

	return errors.Join(errs...)
}
