package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// StoragePaths contains paths for application storage
type StoragePaths struct {
	DatabasePath string
	LogPath      string
}

// GetDefaultStoragePaths returns default storage paths using XDG base directories
func GetDefaultStoragePaths() StoragePaths {
	return StoragePaths{
		DatabasePath: filepath.Join(xdg.StateHome, "threadagent", "threadagent.db"),
		LogPath:      filepath.Join(xdg.StateHome, "threadagent", "threadagent.log"),
	}
}

// GetUserConfigPaths returns the user config candidates under XDG_CONFIG_HOME
func GetUserConfigPaths() []string {
	dir := filepath.Join(xdg.ConfigHome, "threadagent")
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.yml"),
		filepath.Join(dir, "config.json"),
	}
}

// GetProjectConfigPaths returns the project config candidates in the working directory
func GetProjectConfigPaths() []string {
	return []string{".threadagent.yaml", ".threadagent.yml", ".threadagent.json"}
}
