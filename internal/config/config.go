package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string

	// Pipeline tunables. Defaults match the documented requirements; all
	// are overridable per deployment.
	MaxSegmentTokens   int
	PromotionThreshold float64
	ReviewFloor        float64
	MergeThreshold     float64
	QuoteSimilarity    float64
	SegmentConcurrency int
	ExtractRetries     int
	ExtractRatePerSec  float64
	MaxRunInputTokens  int
	MaxRunOutputTokens int
	WorkspaceTZ        string
}

func Load() Config {
	return Config{
		Port:            envInt("MINUTE_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("MINUTE_MODEL", "claude-sonnet-4-20250514"),

		MaxSegmentTokens:   envInt("MINUTE_MAX_SEGMENT_TOKENS", 2000),
		PromotionThreshold: envFloat("MINUTE_PROMOTION_THRESHOLD", 0.65),
		ReviewFloor:        envFloat("MINUTE_REVIEW_FLOOR", 0.50),
		MergeThreshold:     envFloat("MINUTE_MERGE_THRESHOLD", 0.8),
		QuoteSimilarity:    envFloat("MINUTE_QUOTE_SIMILARITY", 0.9),
		SegmentConcurrency: envInt("MINUTE_SEGMENT_CONCURRENCY", 4),
		ExtractRetries:     envInt("MINUTE_EXTRACT_RETRIES", 3),
		ExtractRatePerSec:  envFloat("MINUTE_EXTRACT_RATE", 2),
		MaxRunInputTokens:  envInt("MINUTE_MAX_RUN_INPUT_TOKENS", 200000),
		MaxRunOutputTokens: envInt("MINUTE_MAX_RUN_OUTPUT_TOKENS", 50000),
		WorkspaceTZ:        envStr("MINUTE_WORKSPACE_TZ", "UTC"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
