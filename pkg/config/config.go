package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds global settings for the Bastion gateway.
// All settings can be configured via environment variables or programmatically.
type Config struct {
	// === Decision Thresholds (0.0 - 1.0) ===
	// Tune these to balance security vs. false positives
	SQLThreshold       float64 // Signature score above this = sql_injection verdict (default: 0.6)
	XSSThreshold       float64 // Signature score above this = xss verdict (default: 0.6)
	TraversalThreshold float64 // Signature score above this = path_traversal verdict (default: 0.6)
	BotThreshold       float64 // Anomaly confidence above this + bot UA = suspicious_bot (default: 0.5)
	AnomalyThreshold   float64 // Anomaly confidence above this = anomaly verdict (default: 0.7)

	// === Model & Training ===
	ModelPath       string // Path to the persisted model artifact (default: "models/bastion_model.json")
	MinTrainingRows int    // Minimum rows required for a retrain (default: 50)
	SeedRows        int    // Synthetic benign rows used when no artifact exists (default: 1000)

	// === Client Reputation ===
	SuspiciousAgents []string // Case-insensitive UA substrings flagged as bot/scanner traffic

	// === Collaborators ===
	DatabaseURL string // Postgres DSN for the request_logs store ("" = logging disabled)
	RedisURL    string // Redis URL for rate limiting ("" = limiter disabled)

	// === Rate Limiting ===
	RateLimitPerMinute int // Requests per IP per minute before rate_limit_exceeded (default: 10)
}

// NewDefaultConfig creates a Config with sensible defaults.
// All settings can be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		SQLThreshold:       GetEnvFloat("BASTION_SQL_THRESHOLD", 0.6),
		XSSThreshold:       GetEnvFloat("BASTION_XSS_THRESHOLD", 0.6),
		TraversalThreshold: GetEnvFloat("BASTION_TRAVERSAL_THRESHOLD", 0.6),
		BotThreshold:       GetEnvFloat("BASTION_BOT_THRESHOLD", 0.5),
		AnomalyThreshold:   GetEnvFloat("BASTION_ANOMALY_THRESHOLD", 0.7),

		ModelPath:       GetEnv("BASTION_MODEL_PATH", "models/bastion_model.json"),
		MinTrainingRows: GetEnvInt("BASTION_MIN_TRAINING_ROWS", 50),
		SeedRows:        GetEnvInt("BASTION_SEED_ROWS", 1000),

		SuspiciousAgents: GetEnvSlice("BASTION_SUSPICIOUS_AGENTS", []string{
			"curl", "python-requests", "nmap", "sqlmap", "nikto",
			"masscan", "wget", "go-http-client", "bot", "crawler", "scanner",
		}),

		DatabaseURL: GetEnv("DATABASE_URL", ""),
		RedisURL:    GetEnv("REDIS_URL", ""),

		RateLimitPerMinute: GetEnvInt("BASTION_RATE_LIMIT_PER_MINUTE", 10),
	}
}

// NewHighSecurityConfig creates a Config for maximum sensitivity
// (may produce more false positives).
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.SQLThreshold = 0.4
	cfg.XSSThreshold = 0.4
	cfg.TraversalThreshold = 0.4
	cfg.AnomalyThreshold = 0.5
	return cfg
}

// Helper functions for environment variable parsing.
// These are exported for use by other packages (e.g., pkg/waf).

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
