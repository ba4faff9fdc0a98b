// Copyright 2025 Author(s) of Guardrail Gateway
// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultModels is the configured model set, in fan-out order.
var DefaultModels = []string{"prompt-guard", "pii-detect", "hate-detect", "content-class"}

// Backend describes one configured model service.
type Backend struct {
	Name    string
	BaseURL string
}

// Config holds every recognised setting with its effective value.
type Config struct {
	Host      string
	Port      int
	Debug     bool
	LogLevel  string
	LogFormat string

	// Model call budget.
	ModelTimeout        time.Duration
	ModelConnectTimeout time.Duration

	// Client pool caps.
	MaxConnections  int
	MaxIdlePerHost  int
	ProbeInterval   time.Duration
	ShutdownTimeout time.Duration

	// Circuit breaker policy.
	CBFailureThreshold int
	CBRecoveryTimeout  time.Duration
	CBSuccessThreshold int

	// Retry policy. RetryMaxAttempts counts the first attempt.
	RetryEnabled     bool
	RetryMaxAttempts int
	RetryWait        time.Duration

	Backends []Backend
}

// envKey converts a model name to its URL environment variable key,
// e.g. "prompt-guard" -> "model_prompt_guard_url".
func envKey(model string) string {
	return "model_" + strings.ReplaceAll(model, "-", "_") + "_url"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	for _, model := range DefaultModels {
		v.SetDefault(envKey(model), fmt.Sprintf("http://model-%s:8000", model))
	}

	// 80ms overall, 20ms connect: the latency budget lives here.
	v.SetDefault("model_timeout_seconds", 0.08)
	v.SetDefault("model_connect_timeout", 0.02)

	v.SetDefault("http_max_connections", 100)
	v.SetDefault("http_max_idle_per_host", 20)
	v.SetDefault("probe_interval_seconds", 15)
	v.SetDefault("shutdown_timeout_seconds", 10)

	v.SetDefault("cb_failure_threshold", 5)
	v.SetDefault("cb_recovery_timeout", 30.0)
	v.SetDefault("cb_success_threshold", 3)

	v.SetDefault("retry_enabled", true)
	v.SetDefault("retry_max_attempts", 2)
	v.SetDefault("retry_wait_ms", 10)
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// Load reads configuration from the environment, applying defaults for
// anything unset. Unknown environment variables are ignored.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Host:      v.GetString("host"),
		Port:      v.GetInt("port"),
		Debug:     v.GetBool("debug"),
		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),

		ModelTimeout:        secondsToDuration(v.GetFloat64("model_timeout_seconds")),
		ModelConnectTimeout: secondsToDuration(v.GetFloat64("model_connect_timeout")),

		MaxConnections:  v.GetInt("http_max_connections"),
		MaxIdlePerHost:  v.GetInt("http_max_idle_per_host"),
		ProbeInterval:   secondsToDuration(v.GetFloat64("probe_interval_seconds")),
		ShutdownTimeout: secondsToDuration(v.GetFloat64("shutdown_timeout_seconds")),

		CBFailureThreshold: v.GetInt("cb_failure_threshold"),
		CBRecoveryTimeout:  secondsToDuration(v.GetFloat64("cb_recovery_timeout")),
		CBSuccessThreshold: v.GetInt("cb_success_threshold"),

		RetryEnabled:     v.GetBool("retry_enabled"),
		RetryMaxAttempts: v.GetInt("retry_max_attempts"),
		RetryWait:        time.Duration(v.GetInt("retry_wait_ms")) * time.Millisecond,
	}

	for _, model := range DefaultModels {
		cfg.Backends = append(cfg.Backends, Backend{
			Name:    model,
			BaseURL: strings.TrimRight(v.GetString(envKey(model)), "/"),
		})
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ModelTimeout <= 0 || c.ModelConnectTimeout <= 0 {
		return fmt.Errorf("model timeouts must be positive")
	}
	if c.CBFailureThreshold < 1 {
		return fmt.Errorf("cb_failure_threshold must be at least 1")
	}
	if c.CBSuccessThreshold < 1 {
		return fmt.Errorf("cb_success_threshold must be at least 1")
	}
	if c.CBRecoveryTimeout <= 0 {
		return fmt.Errorf("cb_recovery_timeout must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be at least 1")
	}
	for _, b := range c.Backends {
		if b.BaseURL == "" {
			return fmt.Errorf("missing URL for model %s", b.Name)
		}
	}
	return nil
}

// ModelNames returns the configured model names in fan-out order.
func (c *Config) ModelNames() []string {
	names := make([]string, 0, len(c.Backends))
	for _, b := range c.Backends {
		names = append(names, b.Name)
	}
	return names
}

// ModelURL returns the base URL for a configured model.
func (c *Config) ModelURL(name string) (string, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b.BaseURL, true
		}
	}
	return "", false
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
