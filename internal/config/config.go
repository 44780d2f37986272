package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the prompt portal backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	LLMServerURL    string
	LLMTimeout      time.Duration
	LLMProbeTimeout time.Duration
	LLMTemperature  float64
	LLMTopP         float64
	LLMMaxTokens    int
	LLMModel        string
	LLMSkipThinking bool

	MaxHistoryMessages int

	DatabaseURL string
}

// Default returns the built-in configuration used when no environment
// overrides are present. It is also the fallback for the lazy service
// accessors.
func Default() Config {
	return Config{
		BindAddr:           ":8000",
		ShutdownTimeout:    15 * time.Second,
		MetricsNamespace:   "promptportal",
		AllowAnyOrigin:     false,
		LLMServerURL:       "http://localhost:8080",
		LLMTimeout:         300 * time.Second,
		LLMProbeTimeout:    10 * time.Second,
		LLMTemperature:     0.6,
		LLMTopP:            0.9,
		LLMMaxTokens:       4096,
		LLMModel:           "default",
		LLMSkipThinking:    true,
		MaxHistoryMessages: 20,
	}
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Default()
	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LLMServerURL = strings.TrimRight(envOrDefault("LLM_SERVER_URL", cfg.LLMServerURL), "/")
	cfg.LLMModel = envOrDefault("LLM_MODEL", cfg.LLMModel)
	cfg.DatabaseURL = trimmedEnv("DATABASE_URL")

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMProbeTimeout, err = durationFromEnv("LLM_PROBE_TIMEOUT", cfg.LLMProbeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTopP, err = floatFromEnv("LLM_TOP_P", cfg.LLMTopP)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMSkipThinking, err = boolFromEnv("LLM_SKIP_THINKING", cfg.LLMSkipThinking)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxHistoryMessages, err = intFromEnv("LLM_MAX_HISTORY_MESSAGES", cfg.MaxHistoryMessages)
	if err != nil {
		return Config{}, err
	}

	if cfg.LLMServerURL == "" {
		return Config{}, fmt.Errorf("LLM_SERVER_URL must not be empty")
	}
	if cfg.LLMTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if cfg.LLMProbeTimeout <= 0 {
		return Config{}, fmt.Errorf("LLM_PROBE_TIMEOUT must be positive")
	}
	if cfg.LLMTemperature < 0 {
		return Config{}, fmt.Errorf("LLM_TEMPERATURE must be >= 0")
	}
	if cfg.LLMTopP <= 0 || cfg.LLMTopP > 1 {
		return Config{}, fmt.Errorf("LLM_TOP_P must be in (0, 1]")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if cfg.MaxHistoryMessages <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_HISTORY_MESSAGES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
