package main

import (
	"fmt"
	"os"

	"github.com/elee1766/threadagent/src/config"
	"gopkg.in/yaml.v3"
)

// ConfigCmd inspects the effective configuration
type ConfigCmd struct {
	Show  ConfigShowCmd  `cmd:"" default:"1" help:"Print the effective configuration as YAML"`
	Get   ConfigGetCmd   `cmd:"" help:"Print one value, e.g. provider.model"`
	Paths ConfigPathsCmd `cmd:"" help:"List the files configuration is read from"`
}

// ConfigShowCmd prints the merged configuration with the API key masked
type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	cfg.Provider.APIKey = maskAPIKey(cfg.Provider.APIKey)

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

// ConfigGetCmd prints a single configuration value
type ConfigGetCmd struct {
	Key string `arg:"" help:"Dotted key"`
}

func (c *ConfigGetCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	value, err := getConfigValue(cfg, c.Key)
	if err != nil {
		return err
	}
	if c.Key == "provider.api_key" {
		value = maskAPIKey(cfg.Provider.APIKey)
	}
	fmt.Println(value)
	return nil
}

// ConfigPathsCmd lists candidate config files in precedence order
type ConfigPathsCmd struct{}

func (c *ConfigPathsCmd) Run(cli *CLI) error {
	paths := config.GetConfigPaths()
	show := func(layer string, candidates []string) {
		for _, p := range candidates {
			state := "missing"
			if _, err := os.Stat(p); err == nil {
				state = "found"
			}
			fmt.Printf("%-8s %-8s %s\n", layer, state, p)
		}
	}
	if cli.Config != "" {
		show("flag", []string{cli.Config})
		return nil
	}
	show("user", paths.UserConfig)
	show("project", paths.ProjectConfig)
	fmt.Printf("env      prefix   %s_*\n", paths.EnvironmentPrefix)
	return nil
}
