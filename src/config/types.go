package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for threadagent
type Config struct {
	// Version of the configuration format
	Version string `json:"version" yaml:"version"`

	// Provider selects and configures the language model backend
	Provider ProviderConfig `json:"provider" yaml:"provider"`

	// Agent bounds a single execution attempt
	Agent AgentConfig `json:"agent" yaml:"agent"`

	// Approval decides which tools wait for a human
	Approval ApprovalConfig `json:"approval" yaml:"approval"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Notify configures the change-notification channel used by approval waits
	Notify NotifyConfig `json:"notify" yaml:"notify"`

	// EventBus sizes the in-process live event stream
	EventBus EventBusConfig `json:"event_bus" yaml:"event_bus"`

	// Observability configuration
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// ProviderConfig defines configuration for a model provider
type ProviderConfig struct {
	// Name of the provider (anthropic, openrouter)
	Name string `json:"name" yaml:"name" validate:"provider"`

	// APIKey for authentication (can be omitted if using env vars)
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// APIKeyEnvVar specifies the environment variable to read the API key from
	APIKeyEnvVar string `json:"api_key_env_var,omitempty" yaml:"api_key_env_var,omitempty"`

	// BaseURL overrides the default API endpoint
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`

	Model       string   `json:"model" yaml:"model" validate:"required"`
	MaxTokens   int64    `json:"max_tokens" yaml:"max_tokens" validate:"min=1"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	MaxRetries  int      `json:"max_retries" yaml:"max_retries" validate:"min=0"`
}

// AgentConfig bounds the execution loop
type AgentConfig struct {
	// MaxIterations per execution attempt
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" validate:"min=1"`

	// HistoryLimit is the number of most recent thread messages loaded per attempt
	HistoryLimit int `json:"history_limit" yaml:"history_limit" validate:"min=1"`

	// SystemPromptOverride replaces the generated system prompt
	SystemPromptOverride string `json:"system_prompt_override,omitempty" yaml:"system_prompt_override,omitempty"`

	// WorkspaceRoot is the directory file tools are confined to
	WorkspaceRoot string `json:"workspace_root,omitempty" yaml:"workspace_root,omitempty"`
}

// ApprovalConfig defines which tool calls need a human decision
type ApprovalConfig struct {
	// Require lists tool name patterns (glob, or /regex/) that need approval
	Require []string `json:"require" yaml:"require" validate:"dive,glob_pattern"`

	// Auto lists tool name patterns that never need approval; they win over Require
	Auto []string `json:"auto,omitempty" yaml:"auto,omitempty" validate:"dive,glob_pattern"`

	// Timeout for the blocking wait primitive
	Timeout Duration `json:"timeout" yaml:"timeout" validate:"min=0"`

	// MaxRevisions is the rejection count at which the max-revisions flag is raised
	MaxRevisions int `json:"max_revisions" yaml:"max_revisions" validate:"min=1"`
}

// StorageConfig locates the sqlite database
type StorageConfig struct {
	DatabasePath string `json:"database_path,omitempty" yaml:"database_path,omitempty"`
}

// NotifyConfig selects the change-notification driver
type NotifyConfig struct {
	// Driver is memory or postgres
	Driver string `json:"driver" yaml:"driver" validate:"notify_driver"`

	// PostgresDSN is required for the postgres driver
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" validate:"required_if=Driver postgres"`
}

// EventBusConfig sizes the live event stream
type EventBusConfig struct {
	// BufferSize is the number of events kept per request for late subscribers
	BufferSize int `json:"buffer_size" yaml:"buffer_size" validate:"min=1"`

	// SubscriberBuffer is the channel capacity of each subscriber
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer" validate:"min=1"`

	// Retention keeps a completed request's buffer around for late joiners
	Retention Duration `json:"retention" yaml:"retention" validate:"min=0"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// Format is the output format (text, json)
	Format string `json:"format,omitempty" yaml:"format,omitempty" validate:"log_format"`

	// File, when set, receives JSON logs instead of stderr
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// TelemetryConfig configures OTLP export. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool   `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
}

// ConfigPrecedence defines the order of configuration loading
type ConfigPrecedence struct {
	// UserConfig candidates, first existing file wins
	UserConfig []string

	// ProjectConfig candidates, first existing file wins
	ProjectConfig []string

	// EnvironmentPrefix for env var overrides (e.g. THREADAGENT)
	EnvironmentPrefix string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigSource indicates where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceUser        ConfigSource = "user"
	SourceProject     ConfigSource = "project"
	SourceEnvironment ConfigSource = "environment"
	SourceCLI         ConfigSource = "cli"
)

// Duration is a time.Duration that reads "10m" style strings from JSON and
// YAML. Plain JSON numbers are taken as nanoseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case float64:
		*d = Duration(time.Duration(val))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", val, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}
