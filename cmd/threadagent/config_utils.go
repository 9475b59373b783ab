package main

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/elee1766/threadagent/src/config"
)

// loadConfig layers the config files, the environment and the global flags.
func loadConfig(cli *CLI) (*config.Config, error) {
	precedence := config.GetConfigPaths()
	if cli.Config != "" {
		precedence.UserConfig = []string{cli.Config}
		precedence.ProjectConfig = nil
	}

	loader := config.NewLoader(precedence)
	cfg, err := loader.Load()
	if err != nil {
		return nil, errConfig{err}
	}
	overrideConfigFromCLI(cfg, cli)
	if err := loader.Finalize(cfg); err != nil {
		return nil, errConfig{err}
	}
	return cfg, nil
}

// overrideConfigFromCLI overrides configuration values with CLI flags
func overrideConfigFromCLI(cfg *config.Config, cli *CLI) {
	if cli.Provider != "" && cli.Provider != cfg.Provider.Name {
		// the key loaded so far belongs to the other provider
		cfg.Provider.Name = cli.Provider
		cfg.Provider.APIKey = ""
		cfg.Provider.APIKeyEnvVar = ""
	}
	if cli.APIKey != "" {
		cfg.Provider.APIKey = cli.APIKey
	}
	if cli.Model != "" {
		cfg.Provider.Model = cli.Model
	}
	if cli.BaseURL != "" {
		cfg.Provider.BaseURL = cli.BaseURL
	}
	if cli.Database != "" {
		cfg.Storage.DatabasePath = cli.Database
	}
	if cli.Workspace != "" {
		cfg.Agent.WorkspaceRoot = cli.Workspace
	}
	if cli.LogLevel != "" {
		cfg.Observability.Logging.Level = cli.LogLevel
	}
	if cli.LogFile != "" {
		cfg.Observability.Logging.File = cli.LogFile
	}
}

// getConfigValue retrieves a configuration value by its dotted yaml key,
// e.g. "provider.model".
func getConfigValue(cfg *config.Config, key string) (interface{}, error) {
	v := reflect.ValueOf(cfg).Elem()

	for _, part := range strings.Split(key, ".") {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("cannot access field %s: not a struct", part)
		}

		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return nil, fmt.Errorf("field %s not found", part)
		}
		v = field
	}

	return v.Interface(), nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// maskAPIKey masks an API key for display
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
