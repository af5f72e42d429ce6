package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Upstreams
	LLMProviderEndpoint  string // where chat completions are forwarded
	RoutingModelEndpoint string // where routing prompts are sent
	RoutingModel         string // name of the routing model
	RoutesFile           string // YAML route catalog path
	RoutingMaxTokens     int    // routing prompt token budget, default: 2048

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitTPM int64 // tokens per minute, default: 100000
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LLMProviderEndpoint:  os.Getenv("LLM_PROVIDER_ENDPOINT"),
		RoutingModelEndpoint: os.Getenv("ROUTING_MODEL_ENDPOINT"),
		RoutingModel:         getEnv("ROUTING_MODEL", "arch-router"),
		RoutesFile:           getEnv("ROUTES_FILE", "routes.yaml"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	maxTokensStr := getEnv("ROUTING_MAX_TOKENS", "2048")
	maxTokens, err := strconv.Atoi(maxTokensStr)
	if err != nil || maxTokens <= 0 {
		return nil, fmt.Errorf("invalid ROUTING_MAX_TOKENS: %q", maxTokensStr)
	}
	cfg.RoutingMaxTokens = maxTokens

	tpmStr := getEnv("DEFAULT_RATE_LIMIT_TPM", "100000")
	tpm, err := strconv.ParseInt(tpmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_TPM: %w", err)
	}
	cfg.DefaultRateLimitTPM = tpm

	// Validation
	if cfg.LLMProviderEndpoint == "" {
		return nil, fmt.Errorf("LLM_PROVIDER_ENDPOINT is required")
	}
	if cfg.RoutingModelEndpoint == "" {
		return nil, fmt.Errorf("ROUTING_MODEL_ENDPOINT is required")
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
