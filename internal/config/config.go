package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// Database
	SQLiteDBPath string

	// Sessions
	SessionTTL time.Duration

	// LLM provider (OpenAI-compatible chat completions API)
	LLMAPIKey   string
	LLMBaseURL  string
	ChatModel   string
	VisionModel string
	LLMTimeout  time.Duration

	// Receipt upload
	MaxUploadBytes int64

	// Currency conversion for non-USD receipt amounts
	VNDPerUSD float64
	EURPerUSD float64

	// AMQP (optional; empty URL disables event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Chat conversation store
	ChatThreadLimit int
	ChatThreadTTL   time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/coach.db"),

		SessionTTL: getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		LLMAPIKey:   getEnv("OPENROUTER_API_KEY", ""),
		LLMBaseURL:  getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		ChatModel:   getEnv("LLM_CHAT_MODEL", "meta-llama/llama-3.3-70b-instruct"),
		VisionModel: getEnv("LLM_VISION_MODEL", "meta-llama/llama-3.2-11b-vision-instruct"),
		LLMTimeout:  getEnvDuration("LLM_TIMEOUT", 60*time.Second),

		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 5<<20),

		VNDPerUSD: getEnvFloat("VND_PER_USD", 25000),
		EURPerUSD: getEnvFloat("EUR_PER_USD", 0.92),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "coach"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "budget_notifications"),

		ChatThreadLimit: getEnvInt("CHAT_THREAD_LIMIT", 500),
		ChatThreadTTL:   getEnvDuration("CHAT_THREAD_TTL", 12*time.Hour),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate SQLite path and make sure its directory exists
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// The LLM provider key is mandatory; every AI endpoint depends on it
	if c.LLMAPIKey == "" {
		errors = append(errors, "OPENROUTER_API_KEY is required")
	}
	if c.LLMBaseURL != "" {
		if _, err := url.Parse(c.LLMBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid LLM base URL '%s': %v", c.LLMBaseURL, err))
		}
	}
	if c.ChatModel == "" {
		errors = append(errors, "chat model cannot be empty")
	}
	if c.VisionModel == "" {
		errors = append(errors, "vision model cannot be empty")
	}
	if c.LLMTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at least 1 second", c.LLMTimeout))
	} else if c.LLMTimeout > 10*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid LLM timeout %v: must be at most 10 minutes", c.LLMTimeout))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.MaxUploadBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1KB", c.MaxUploadBytes))
	} else if c.MaxUploadBytes > 50<<20 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at most 50MB", c.MaxUploadBytes))
	}

	if c.VNDPerUSD <= 0 {
		errors = append(errors, fmt.Sprintf("invalid VND rate %v: must be positive", c.VNDPerUSD))
	}
	if c.EURPerUSD <= 0 {
		errors = append(errors, fmt.Sprintf("invalid EUR rate %v: must be positive", c.EURPerUSD))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ChatThreadLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid chat thread limit %d: must be at least 1", c.ChatThreadLimit))
	}
	if c.ChatThreadTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid chat thread TTL %v: must be at least 1 minute", c.ChatThreadTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
