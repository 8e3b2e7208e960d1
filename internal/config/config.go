package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// DirName is the name of the configuration directory under $HOME.
	DirName = ".restsh"
)

var (
	// ConfigDir is the global configuration directory (~/.restsh)
	ConfigDir string

	// ConfigFile is the default settings file
	ConfigFile string

	// DatabasePath is the SQLite database file for line history
	DatabasePath string

	// CookieFile is the default cookie file
	CookieFile string
)

// Initialize sets up the configuration directory under the user's home.
// RESTSH_HOME overrides its location.
func Initialize() error {
	if dir := os.Getenv("RESTSH_HOME"); dir != "" {
		return InitializeAt(dir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(homeDir, DirName))
}

// InitializeAt points every path at dir and creates it.
func InitializeAt(dir string) error {
	ConfigDir = dir
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")
	DatabasePath = filepath.Join(ConfigDir, "restsh.db")
	CookieFile = filepath.Join(ConfigDir, "cookies.json")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if len(path) < 2 || path[:2] != "~/" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, path[2:]), nil
}
