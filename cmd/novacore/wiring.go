package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/nova-run/orchestrator/internal/config"
	"github.com/nova-run/orchestrator/internal/engine"
	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/internal/sessionstore"
)

// openSessionStore opens the transcript store selected by cfg.Driver,
// returning a close func that is always safe to defer.
func openSessionStore(cfg config.DatabaseConfig) (sessionstore.Store, func(), error) {
	switch strings.ToLower(cfg.Driver) {
	case "postgres":
		store, err := sessionstore.NewPostgresStore(sessionstore.PostgresConfig{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Name,
			SSLMode:         cfg.SSLMode,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, func() {}, fmt.Errorf("postgres: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "sqlite", "":
		store, err := sessionstore.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, func() {}, fmt.Errorf("sqlite: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// buildProviderRegistry connects every backend with credentials present
// in cfg and ranks them into the integrations snapshot the engine's
// policy-select phase consults (spec §4.2.1). A backend whose credential
// is absent is simply skipped rather than failing the whole registry.
func buildProviderRegistry(ctx context.Context, cfg config.ProvidersConfig) (*provider.Registry, []engine.ProviderIntegration) {
	var backends []provider.ChatProvider
	var integrations []engine.ProviderIntegration

	rank := func(name string) int {
		for i, candidate := range append([]string{cfg.Default}, cfg.Fallback...) {
			if strings.EqualFold(candidate, name) {
				return i
			}
		}
		return len(cfg.Fallback) + 1
	}

	if cfg.Anthropic.APIKey != "" {
		if p, err := provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:       cfg.Anthropic.APIKey,
			BaseURL:      cfg.Anthropic.BaseURL,
			DefaultModel: cfg.Anthropic.DefaultModel,
		}); err == nil {
			backends = append(backends, p)
			integrations = append(integrations, engine.ProviderIntegration{
				Name: p.Name(), Keyed: true, Enabled: true,
				Preferred: rank("anthropic"), DefaultModel: cfg.Anthropic.DefaultModel,
			})
		}
	}

	if cfg.OpenAI.APIKey != "" {
		if p, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			DefaultModel: cfg.OpenAI.DefaultModel,
		}); err == nil {
			backends = append(backends, p)
			integrations = append(integrations, engine.ProviderIntegration{
				Name: p.Name(), Keyed: true, Enabled: true,
				Preferred: rank("openai"), DefaultModel: cfg.OpenAI.DefaultModel,
			})
		}
	}

	if cfg.Gemini.APIKey != "" {
		if p, err := provider.NewGeminiProvider(ctx, provider.GeminiConfig{
			APIKey:       cfg.Gemini.APIKey,
			DefaultModel: cfg.Gemini.DefaultModel,
		}); err == nil {
			backends = append(backends, p)
			integrations = append(integrations, engine.ProviderIntegration{
				Name: p.Name(), Keyed: true, Enabled: true,
				Preferred: rank("gemini"), DefaultModel: cfg.Gemini.DefaultModel,
			})
		}
	}

	if cfg.Bedrock.Region != "" {
		if p, err := provider.NewBedrockProvider(ctx, provider.BedrockConfig{
			Region:       cfg.Bedrock.Region,
			DefaultModel: cfg.Bedrock.DefaultModel,
		}); err == nil {
			backends = append(backends, p)
			integrations = append(integrations, engine.ProviderIntegration{
				Name: p.Name(), Keyed: true, Enabled: true,
				Preferred: rank("bedrock"), DefaultModel: cfg.Bedrock.DefaultModel,
			})
		}
	}

	if len(backends) == 0 {
		return nil, nil
	}
	return provider.NewRegistry(backends...), integrations
}
