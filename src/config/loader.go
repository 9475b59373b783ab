package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and layering configurations from multiple sources
type Loader struct {
	precedence ConfigPrecedence
	validator  *Validator
	getenv     func(string) string
}

// NewLoader creates a new configuration loader
func NewLoader(precedence ConfigPrecedence) *Loader {
	return &Loader{
		precedence: precedence,
		validator:  NewValidator(),
		getenv:     os.Getenv,
	}
}

// Load starts from DefaultConfig, decodes the first existing user and project
// files over it, applies environment overrides and validates the result.
// Each layer only overrides the keys it sets.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	layers := []struct {
		paths  []string
		source ConfigSource
	}{
		{l.precedence.UserConfig, SourceUser},
		{l.precedence.ProjectConfig, SourceProject},
	}

	for _, layer := range layers {
		path := firstExisting(layer.paths)
		if path == "" {
			continue
		}
		if err := decodeFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to load %s config from %s: %w", layer.source, path, err)
		}
	}

	if l.precedence.EnvironmentPrefix != "" {
		if err := l.applyEnvironmentOverrides(config); err != nil {
			return nil, err
		}
	}

	if err := l.Finalize(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Finalize fills derived values and validates. Callers that change the
// config after Load (CLI flags) call it again.
func (l *Loader) Finalize(config *Config) error {
	if config.Provider.APIKeyEnvVar == "" {
		config.Provider.APIKeyEnvVar = defaultAPIKeyEnvVar(config.Provider.Name)
	}
	if config.Provider.APIKey == "" && config.Provider.APIKeyEnvVar != "" {
		config.Provider.APIKey = l.getenv(config.Provider.APIKeyEnvVar)
	}
	if config.Storage.DatabasePath == "" {
		config.Storage.DatabasePath = GetDefaultStoragePaths().DatabasePath
	}

	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}

// LoadFile loads a single configuration file over the defaults
func (l *Loader) LoadFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveFile saves configuration to a file, as YAML or JSON by extension
func (l *Loader) SaveFile(config *Config, path string) error {
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func decodeFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if isYAML(path) {
		if err := yaml.Unmarshal(data, into); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// applyEnvironmentOverrides applies environment variable overrides to config
func (l *Loader) applyEnvironmentOverrides(config *Config) error {
	prefix := l.precedence.EnvironmentPrefix + "_"
	env := func(name string) string { return l.getenv(prefix + name) }

	if v := env("PROVIDER"); v != "" {
		if v != config.Provider.Name {
			config.Provider.APIKeyEnvVar = defaultAPIKeyEnvVar(v)
		}
		config.Provider.Name = v
	}
	if v := env("API_KEY"); v != "" {
		config.Provider.APIKey = v
	}
	if v := env("MODEL"); v != "" {
		config.Provider.Model = v
	}
	if v := env("BASE_URL"); v != "" {
		config.Provider.BaseURL = v
	}
	if v := env("MAX_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_ITERATIONS: %w", prefix, err)
		}
		config.Agent.MaxIterations = n
	}
	if v := env("WORKSPACE"); v != "" {
		config.Agent.WorkspaceRoot = v
	}
	if v := env("DATABASE"); v != "" {
		config.Storage.DatabasePath = v
	}
	if v := env("NOTIFY_DRIVER"); v != "" {
		config.Notify.Driver = v
	}
	if v := env("POSTGRES_DSN"); v != "" {
		config.Notify.PostgresDSN = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		config.Observability.Logging.Level = strings.ToLower(v)
	}
	if v := env("OTEL_ENDPOINT"); v != "" {
		config.Observability.Telemetry.Endpoint = v
	}
	return nil
}

// GetConfigPaths returns the configuration file paths to check
func GetConfigPaths() ConfigPrecedence {
	return ConfigPrecedence{
		UserConfig:        GetUserConfigPaths(),
		ProjectConfig:     GetProjectConfigPaths(),
		EnvironmentPrefix: "THREADAGENT",
	}
}
