package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects which surfaces the process runs.
const (
	ModeAPI    = "api"
	ModeWorker = "worker"
	ModeAll    = "all"
)

type Config struct {
	Port        string
	Environment string
	Mode        string

	// Redis (processed-message records; empty falls back to in-memory)
	RedisURL string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	// Agent
	AgentSecret    string
	AgentMaxRounds int

	// Shopify
	ShopifyStoreURL    string
	ShopifyAccessToken string
	ShopifyAPIVersion  string

	// Gmail OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleTokenJSON    string

	// Poller
	PollInterval   time.Duration
	PollWorkers    int
	PollListLimit  int
	MessageTimeout time.Duration

	// Sender whitelist merged into the gate rules
	GateWhitelist []string

	// Escalation
	EscalationWebhookURL string
}

func Load() (*Config, error) {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		Mode:        getEnv("MODE", ModeAll),

		RedisURL: getEnv("REDIS_URL", ""),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2048),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.7),

		AgentSecret:    getEnv("AGENT_SECRET", ""),
		AgentMaxRounds: getEnvInt("AGENT_MAX_ROUNDS", 5),

		ShopifyStoreURL:    getEnv("SHOPIFY_STORE_URL", ""),
		ShopifyAccessToken: getEnv("SHOPIFY_ACCESS_TOKEN", ""),
		ShopifyAPIVersion:  getEnv("SHOPIFY_API_VERSION", "2025-10"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		GoogleTokenJSON:    getEnv("GOOGLE_TOKEN_JSON", ""),

		PollInterval:   time.Duration(getEnvInt("POLL_INTERVAL_SEC", 60)) * time.Second,
		PollWorkers:    getEnvInt("POLL_WORKERS", 4),
		PollListLimit:  getEnvInt("POLL_LIST_LIMIT", 10),
		MessageTimeout: time.Duration(getEnvInt("MESSAGE_TIMEOUT_SEC", 90)) * time.Second,

		GateWhitelist: getEnvSlice("GATE_WHITELIST", nil),

		EscalationWebhookURL: getEnv("ESCALATION_WEBHOOK_URL", ""),
	}, nil
}

// Validate checks the settings the process cannot run without. Worker-only
// requirements are checked only when the worker runs.
func (c *Config) Validate() error {
	var missing []string
	if c.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if c.ShopifyStoreURL == "" {
		missing = append(missing, "SHOPIFY_STORE_URL")
	}
	if c.ShopifyAccessToken == "" {
		missing = append(missing, "SHOPIFY_ACCESS_TOKEN")
	}
	if c.RunsAPI() && c.AgentSecret == "" {
		missing = append(missing, "AGENT_SECRET")
	}
	if c.RunsWorker() {
		if c.GoogleClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		}
		if c.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
		if c.GoogleTokenJSON == "" {
			missing = append(missing, "GOOGLE_TOKEN_JSON")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	switch c.Mode {
	case ModeAPI, ModeWorker, ModeAll:
	default:
		return fmt.Errorf("invalid MODE %q: must be %s, %s, or %s", c.Mode, ModeAPI, ModeWorker, ModeAll)
	}
	return nil
}

// RunsAPI reports whether the HTTP surface runs in this mode.
func (c *Config) RunsAPI() bool {
	return c.Mode == ModeAPI || c.Mode == ModeAll
}

// RunsWorker reports whether the mailbox poller runs in this mode.
func (c *Config) RunsWorker() bool {
	return c.Mode == ModeWorker || c.Mode == ModeAll
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, strings.ToLower(p))
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
