// Package bootstrap wires configuration into the running surfaces: the HTTP
// API and the mailbox poller.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"support_server/adapter/out/dedup"
	"support_server/adapter/out/shopify"
	"support_server/config"
	"support_server/core/agent"
	"support_server/core/agent/llm"
	"support_server/core/agent/tools"
	"support_server/core/escalation"
	"support_server/core/gate"
)

// Dependencies holds the shared components both surfaces run on.
type Dependencies struct {
	Config   *config.Config
	Log      zerolog.Logger
	Redis    *redis.Client
	Store    dedup.Store
	Shopify  *shopify.Client
	LLM      *llm.Client
	Registry *tools.Registry
	Router   *agent.Router
	Loop     *agent.Loop
	Composer *agent.Composer
	Sink     escalation.Sink
	Gate     *gate.Gate
}

// NewDependencies builds the shared dependency graph. The returned cleanup
// closes external connections.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	log := newLogger(cfg)

	rules := gate.DefaultRules()
	rules.Whitelist = append(rules.Whitelist, cfg.GateWhitelist...)
	g, err := gate.New(rules)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid gate rules: %w", err)
	}

	sink := newSink(cfg, log)

	shopifyClient := shopify.NewClient(shopify.Config{
		StoreURL:    cfg.ShopifyStoreURL,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
	}, log)

	registry := tools.NewRegistry()
	registry.RegisterAll(tools.ShopifyTools(shopifyClient)...)
	registry.Register(tools.NewEscalateTool(sink))

	llmClient := llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})

	deps := &Dependencies{
		Config:   cfg,
		Log:      log,
		Shopify:  shopifyClient,
		LLM:      llmClient,
		Registry: registry,
		Router:   agent.NewRouter(llmClient, log),
		Loop:     agent.NewLoop(llmClient, registry, shopifyClient, cfg.AgentMaxRounds, log),
		Composer: agent.NewComposer(llmClient, log),
		Sink:     sink,
		Gate:     g,
	}

	cleanup := func() {}
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}

		deps.Redis = client
		deps.Store = dedup.NewRedisStore(client)
		cleanup = func() {
			if err := client.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis client")
			}
		}
		log.Info().Msg("using redis processed-message store")
	} else {
		deps.Store = dedup.NewMemoryStore()
		log.Warn().Msg("REDIS_URL not set, processed-message records will not survive restarts")
	}

	return deps, cleanup, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		level = zerolog.DebugLevel
	}
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(level).
			With().Timestamp().Str("service", "support_server").Logger()
	}
	return zerolog.New(os.Stdout).
		Level(level).
		With().Timestamp().Str("service", "support_server").Logger()
}

func newSink(cfg *config.Config, log zerolog.Logger) escalation.Sink {
	logSink := escalation.NewLogSink(log)
	if cfg.EscalationWebhookURL == "" {
		return logSink
	}
	return escalation.NewMultiSink(logSink, escalation.NewWebhookSink(cfg.EscalationWebhookURL, 0))
}
