package main

import (
	"fmt"
	"log/slog"

	"github.com/elee1766/threadagent/src/aisdk"
	"github.com/elee1766/threadagent/src/config"
	"github.com/elee1766/threadagent/src/providers"
	"github.com/elee1766/threadagent/src/providers/anthropic"
	"github.com/elee1766/threadagent/src/providers/openrouter"
)

// modelClient is what the commands need from a provider.
type modelClient interface {
	aisdk.ModelClient
	providers.ModelLister
}

// newModelClient picks the provider named in cfg.
func newModelClient(cfg config.ProviderConfig, logger *slog.Logger) (modelClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set %s or provider.api_key", providers.ErrNoAPIKey, cfg.APIKeyEnvVar)
	}

	switch cfg.Name {
	case config.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		})
	case config.ProviderOpenRouter:
		return openrouter.New(openrouter.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			MaxRetries: cfg.MaxRetries,
			SiteURL:    "https://github.com/elee1766/threadagent",
			SiteName:   "threadagent",
			Logger:     logger,
		})
	default:
		return nil, errConfig{fmt.Errorf("unknown provider %q", cfg.Name)}
	}
}
