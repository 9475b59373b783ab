package config

import (
	"time"
)

const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"

	NotifyMemory   = "memory"
	NotifyPostgres = "postgres"
)

// DefaultConfig returns a default configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Provider: ProviderConfig{
			Name:         ProviderAnthropic,
			APIKeyEnvVar: "ANTHROPIC_API_KEY",
			Model:        "claude-sonnet-4-5",
			MaxTokens:    4096,
			MaxRetries:   2,
		},
		Agent: AgentConfig{
			MaxIterations: 5,
			HistoryLimit:  100,
			WorkspaceRoot: ".",
		},
		Approval: ApprovalConfig{
			Require:      []string{"write_file"},
			Timeout:      Duration(10 * time.Minute),
			MaxRevisions: 3,
		},
		Storage: StorageConfig{
			DatabasePath: GetDefaultStoragePaths().DatabasePath,
		},
		Notify: NotifyConfig{
			Driver: NotifyMemory,
		},
		EventBus: EventBusConfig{
			BufferSize:       1000,
			SubscriberBuffer: 256,
			Retention:        Duration(5 * time.Minute),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			Telemetry: TelemetryConfig{
				ServiceName: "threadagent",
			},
		},
	}
}

// defaultAPIKeyEnvVar is the conventional key variable of each provider
func defaultAPIKeyEnvVar(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return "ANTHROPIC_API_KEY"
	}
}
